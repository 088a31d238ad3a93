// internal/appconfig/load.go
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigDirName is the per-user and per-workspace config directory.
	ConfigDirName = ".lime"
	// ConfigFileName is the config file inside ConfigDirName.
	ConfigFileName = "config.yaml"
	// SecretsFileName holds API keys next to the user config.
	SecretsFileName = "secrets.env"
)

// Secret environment variables read after secrets.env is loaded.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
)

var validate = validator.New()

// Secrets carries API keys. It is passed explicitly to backend constructors.
type Secrets struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// RuntimeConfig is the resolved configuration for one invocation.
type RuntimeConfig struct {
	Config
	Secrets Secrets
	// Files lists the config files merged, lowest precedence first.
	Files []string
	// SecretsFile is the secrets.env path that was loaded, if any.
	SecretsFile string
}

// LoadOptions controls where the cascade looks for files. Empty fields use
// the user's home directory and the current working directory.
type LoadOptions struct {
	ExplicitFile string
	HomeDir      string
	WorkDir      string
}

func (o LoadOptions) resolve() LoadOptions {
	if o.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			o.HomeDir = home
		}
	}
	if o.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			o.WorkDir = wd
		}
	}
	return o
}

// SetDefaults registers the built-in layer of the cascade.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("use_prompt_cache", true)
	v.SetDefault("save_tmp_file", false)
	v.SetDefault("uuid_digits", 4)
	v.SetDefault("input_sheet_prefix", "input")
	v.SetDefault("output_sheet_prefix", "output")
	v.SetDefault("jobs", 1)
	v.SetDefault("debug", false)
	v.SetDefault("timeout", int(defaultRequestTimeout.Seconds()))
	v.SetDefault("metrics", false)
	v.SetDefault("liberal", false)
}

// UserConfigPath returns ~/.lime/config.yaml for home.
func UserConfigPath(home string) string {
	if home == "" {
		return ""
	}
	return filepath.Join(home, ConfigDirName, ConfigFileName)
}

// FindWorkspaceConfig walks up from start and returns the first
// .lime/config.yaml found that is not the user config, or "".
func FindWorkspaceConfig(start, home string) string {
	user := UserConfigPath(home)
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ConfigDirName, ConfigFileName)
		if candidate != user && isFile(candidate) {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// configType infers the format from the extension, defaulting to yaml.
func configType(path string) string {
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext {
	case "json", "toml", "yml", "yaml":
		return ext
	}
	return "yaml"
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadCascade registers defaults and merges, lowest precedence first, the
// user config, the workspace config and the explicit file. Flags bound to v
// keep the highest precedence. A missing explicit file is an error; missing
// user and workspace files are skipped.
func ReadCascade(v *viper.Viper, opts LoadOptions) ([]string, error) {
	opts = opts.resolve()
	SetDefaults(v)

	var files []string
	if p := UserConfigPath(opts.HomeDir); p != "" && isFile(p) {
		files = append(files, p)
	}
	if p := FindWorkspaceConfig(opts.WorkDir, opts.HomeDir); p != "" {
		files = append(files, p)
	}
	if opts.ExplicitFile != "" {
		if !isFile(opts.ExplicitFile) {
			return nil, fmt.Errorf("no configuration file found at %q", opts.ExplicitFile)
		}
		files = append(files, opts.ExplicitFile)
	}

	for _, f := range files {
		v.SetConfigFile(f)
		v.SetConfigType(configType(f))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file %q: %w", f, err)
		}
	}
	return files, nil
}

// Decode materializes and validates the merged configuration.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadSecrets loads ~/.lime/secrets.env into the environment, without
// overriding variables already set, then reads the API keys. It returns the
// secrets file path when one was loaded.
func LoadSecrets(home string) (Secrets, string, error) {
	var loaded string
	if home != "" {
		path := filepath.Join(home, ConfigDirName, SecretsFileName)
		if isFile(path) {
			if err := godotenv.Load(path); err != nil {
				return Secrets{}, "", fmt.Errorf("load %s: %w", path, err)
			}
			loaded = path
		}
	}
	return Secrets{
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv(EnvOpenAIKey)),
		AnthropicAPIKey: strings.TrimSpace(os.Getenv(EnvAnthropicKey)),
	}, loaded, nil
}

// Resolve runs the whole cascade against v and loads secrets.
func Resolve(v *viper.Viper, opts LoadOptions) (*RuntimeConfig, error) {
	opts = opts.resolve()
	files, err := ReadCascade(v, opts)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		cfg.ConfigPath = files[len(files)-1]
	}
	secrets, secretsFile, err := LoadSecrets(opts.HomeDir)
	if err != nil {
		return nil, err
	}
	return &RuntimeConfig{Config: cfg, Secrets: secrets, Files: files, SecretsFile: secretsFile}, nil
}

// Load resolves the configuration with a fresh viper instance.
func Load(opts LoadOptions) (*RuntimeConfig, error) {
	return Resolve(viper.New(), opts)
}

// LoadConfig resolves the cascade with an optional explicit file and returns
// only the merged Config.
func LoadConfig(path string) (Config, error) {
	rc, err := Load(LoadOptions{ExplicitFile: path})
	if err != nil {
		return Config{}, err
	}
	return rc.Config, nil
}

// MaskSecret shows the first and last four characters of a key.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 4) + s[len(s)-4:]
}
