// servers/proxy/config.go
package main

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Answer modes.
const (
	ModeStatic  = "static"
	ModeEcho    = "echo"
	ModeBackend = "backend"
)

// Config is the proxy server's yaml configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequiredKeys must be present in every /infer body besides "question".
	RequiredKeys []string `yaml:"required_keys"`
	// Mode selects the Answerer: static, echo or backend.
	Mode string `yaml:"mode"`
	// Answer is returned by the static mode.
	Answer string `yaml:"answer"`
	// Model is the lime model answered through in backend mode. It is
	// resolved with the lime configuration cascade.
	Model string `yaml:"model"`
	// LimeConfig is an optional explicit lime config file for backend mode.
	LimeConfig string `yaml:"lime_config"`
}

func defaultConfig() Config {
	return Config{
		Host:   "localhost",
		Port:   5000,
		Mode:   ModeStatic,
		Answer: "lime-proxy default answer",
	}
}

// loadConfig reads path over the defaults. A missing file keeps the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch cfg.Mode {
	case ModeStatic, ModeEcho:
	case ModeBackend:
		if strings.TrimSpace(cfg.Model) == "" {
			return cfg, fmt.Errorf("mode %q requires model", cfg.Mode)
		}
	default:
		return cfg, fmt.Errorf("invalid mode %q (expected static, echo or backend)", cfg.Mode)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port out of range: %d", cfg.Port)
	}
	return cfg, nil
}
