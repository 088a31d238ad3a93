// internal/cli/root.go
package lime

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/mwiater/lime/internal/evaluation"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/metrics"
	"github.com/mwiater/lime/internal/providerfactory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.RuntimeConfig
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"

	// loadOptions lets tests point the cascade at temporary home and
	// working directories.
	loadOptions appconfig.LoadOptions
	// newBackend builds backends for eval and check; tests replace it.
	newBackend evaluation.BackendFactory = providerfactory.New
)

// flagKeys maps command-line flags to configuration keys. Flags that a
// command does not define are skipped.
var flagKeys = map[string]string{
	"debug":    "debug",
	"log-file": "log_file",
	"metrics":  "metrics",
	"profile":  "profile",
	"model":    "model_name",
	"output":   "output_dir",
	"jobs":     "jobs",
	"liberal":  "liberal",
	"timeout":  "timeout",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lime",
	Short: "lime - evaluate language models against markdown question sheets",
	Long: `lime runs question sheets written in markdown against hosted and local
language models, grades every completion against the sheet's answers and
writes one JSON artifact per sheet for later rendering and aggregation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rc, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		// Unset flags take the configured value so both agree.
		for name, val := range map[string]bool{"debug": rc.Debug, "metrics": rc.Metrics} {
			if f := cmd.Flags().Lookup(name); f != nil && !f.Changed {
				_ = cmd.Flags().Set(name, strconv.FormatBool(val))
			}
		}
		currentConfig = rc

		if err := logging.Init(rc.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDebug(rc.Debug)
		if rc.Metrics {
			metrics.GetInstance().SetFilePath(rc.MetricsFilePath())
		}
		return nil
	},
}

// resolveConfig binds the flags of cmd to a fresh viper instance and runs the
// configuration cascade under them.
func resolveConfig(cmd *cobra.Command) (*appconfig.RuntimeConfig, error) {
	v := viper.New()
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	if f := cmd.Flags().Lookup("no-cache"); f != nil && f.Changed {
		v.Set("use_prompt_cache", false)
	}

	opts := loadOptions
	opts.ExplicitFile = cfgFile
	rc, err := appconfig.Resolve(v, opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return rc, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file merged over ~/.lime/config.yaml and the workspace .lime/config.yaml")
	rootCmd.PersistentFlags().Bool("debug", false, "log backend request and response payloads")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().Bool("metrics", false, "record backend call metrics")
	rootCmd.PersistentFlags().String("profile", "", "generation parameter preset (generic, accuracy, fact_checker, creative)")
}

// GetConfig returns the configuration resolved for the running command.
func GetConfig() *appconfig.RuntimeConfig {
	return currentConfig
}

// Version returns the version string injected at build time.
func Version() string { return appVersion }

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
