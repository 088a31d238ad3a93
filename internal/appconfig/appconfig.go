// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting lime's configuration.
package appconfig

import (
	"strings"
	"time"

	"github.com/mwiater/lime/internal/genparams"
)

const (
	// DefaultModelName is evaluated when neither config nor flags pick a model.
	DefaultModelName = "gpt-3.5-turbo"
	// defaultRequestTimeout is the default timeout for backend HTTP requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultMetricsFile is where backend call metrics are persisted.
	defaultMetricsFile = ".lime/metrics.json"
)

// Config represents the merged application configuration.
type Config struct {
	ModelName         string `mapstructure:"model_name" yaml:"model_name" validate:"required"`
	UsePromptCache    bool   `mapstructure:"use_prompt_cache" yaml:"use_prompt_cache"`
	SaveTmpFile       bool   `mapstructure:"save_tmp_file" yaml:"save_tmp_file"`
	UUIDDigits        int    `mapstructure:"uuid_digits" yaml:"uuid_digits" validate:"min=1,max=32"`
	InputSheetPrefix  string `mapstructure:"input_sheet_prefix" yaml:"input_sheet_prefix"`
	OutputSheetPrefix string `mapstructure:"output_sheet_prefix" yaml:"output_sheet_prefix" validate:"required"`
	OutputDir         string `mapstructure:"output_dir" yaml:"output_dir,omitempty"`
	Jobs              int    `mapstructure:"jobs" yaml:"jobs" validate:"min=1"`
	Debug             bool   `mapstructure:"debug" yaml:"debug"`
	LogFile           string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	TimeoutSeconds    int    `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
	Metrics           bool   `mapstructure:"metrics" yaml:"metrics"`
	MetricsFile       string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	Liberal           bool   `mapstructure:"liberal" yaml:"liberal"`

	// Profile names a built-in parameter preset applied under Params.
	Profile string `mapstructure:"profile" yaml:"profile,omitempty" validate:"omitempty,oneof=default generic accuracy fact_checker creative"`
	// Params are the user's default generation params.
	Params genparams.Params `mapstructure:"params" yaml:"params,omitempty"`
	// Profiles hold params per backend kind (openai, anthropic, local, proxy).
	Profiles map[string]genparams.Params `mapstructure:"profiles" yaml:"profiles,omitempty"`
	Models   map[string]ModelConfig      `mapstructure:"models" yaml:"models,omitempty" validate:"dive"`

	Local     LocalConfig `mapstructure:"local" yaml:"local"`
	Proxy     ProxyConfig `mapstructure:"proxy" yaml:"proxy"`
	OpenAI    APIConfig   `mapstructure:"openai" yaml:"openai"`
	Anthropic APIConfig   `mapstructure:"anthropic" yaml:"anthropic"`

	ConfigPath string `mapstructure:"-" yaml:"-"`
}

// ModelConfig holds per-model settings under `models.<name>`.
type ModelConfig struct {
	Type         string           `mapstructure:"type" yaml:"type,omitempty" validate:"omitempty,oneof=openai anthropic local llama llamacpp llama.cpp proxy cpl"`
	Path         string           `mapstructure:"path" yaml:"path,omitempty"`
	APIModelName string           `mapstructure:"api_model_name" yaml:"api_model_name,omitempty"`
	Params       genparams.Params `mapstructure:"params" yaml:"params,omitempty"`
}

// LocalConfig points the local backend at a llama.cpp server.
type LocalConfig struct {
	ServerURL   string `mapstructure:"server_url" yaml:"server_url,omitempty" validate:"omitempty,url"`
	ContextSize int    `mapstructure:"n_ctx" yaml:"n_ctx,omitempty" validate:"min=0"`
}

// ProxyConfig configures the HTTP proxy backend.
type ProxyConfig struct {
	URL              string         `mapstructure:"url" yaml:"url,omitempty" validate:"omitempty,url"`
	ValidRequestArgs []string       `mapstructure:"valid_request_args" yaml:"valid_request_args,omitempty"`
	Params           map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

// APIConfig configures a hosted API backend.
type APIConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	ProbeURL string `mapstructure:"probe_url" yaml:"probe_url,omitempty" validate:"omitempty,url"`
}

// RequestTimeout returns the timeout for backend HTTP requests, falling back
// to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the log file path; "" logs to stderr only.
func (c Config) LogFilePath() string {
	return strings.TrimSpace(c.LogFile)
}

// MetricsFilePath returns where backend metrics are persisted.
func (c Config) MetricsFilePath() string {
	if p := strings.TrimSpace(c.MetricsFile); p != "" {
		return p
	}
	return defaultMetricsFile
}

// ModelFor returns the `models.<name>` entry. Keys are matched without case
// because viper lowercases map keys.
func (c Config) ModelFor(name string) (ModelConfig, bool) {
	if m, ok := c.Models[name]; ok {
		return m, true
	}
	lower := strings.ToLower(name)
	for k, m := range c.Models {
		if strings.ToLower(k) == lower {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// BackendParams builds the base layer a backend starts from: built-in
// defaults, the named profile, the user's params, the per-kind profile and
// the per-model params, in that order.
func (c Config) BackendParams(model, kind string) genparams.Params {
	m, _ := c.ModelFor(model)
	return genparams.Merge(
		genparams.Defaults(),
		ParamsForProfile(c.Profile),
		c.Params,
		c.Profiles[strings.ToLower(kind)],
		m.Params,
	)
}
