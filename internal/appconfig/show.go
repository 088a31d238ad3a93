package appconfig

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the files that were merged, the masked secrets and the
// resolved configuration.
func ShowConfig(out io.Writer, rc *RuntimeConfig) {
	if rc == nil {
		fmt.Fprintln(out, "No configuration resolved.")
		return
	}
	if len(rc.Files) == 0 {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintln(out, "Config files (lowest precedence first):")
		for _, f := range rc.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	fmt.Fprintln(out)

	secrets := rc.SecretsFile
	if secrets == "" {
		secrets = "(none)"
	}
	fmt.Fprintf(out, "Secrets file:      %s\n", secrets)
	fmt.Fprintf(out, "  %-18s %s\n", EnvOpenAIKey+":", MaskSecret(rc.Secrets.OpenAIAPIKey))
	fmt.Fprintf(out, "  %-18s %s\n", EnvAnthropicKey+":", MaskSecret(rc.Secrets.AnthropicAPIKey))
	fmt.Fprintln(out)

	cfg := rc.Config
	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Model:            %s\n", cfg.ModelName)
	fmt.Fprintf(out, "  Prompt cache:     %v\n", cfg.UsePromptCache)
	fmt.Fprintf(out, "  Save tmp file:    %v\n", cfg.SaveTmpFile)
	fmt.Fprintf(out, "  Sheet prefixes:   %s -> %s\n", cfg.InputSheetPrefix, cfg.OutputSheetPrefix)
	fmt.Fprintf(out, "  Jobs:             %d\n", cfg.Jobs)
	fmt.Fprintf(out, "  Timeout:          %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Debug:            %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Metrics:          %v (%s)\n", cfg.Metrics, cfg.MetricsFilePath())
	fmt.Fprintf(out, "  Profile:          %s\n", orDefault(cfg.Profile))
	fmt.Fprintf(out, "  Params:           %s\n", cfg.Params)
	if len(cfg.Models) > 0 {
		names := make([]string, 0, len(cfg.Models))
		for name := range cfg.Models {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(out, "  Models:           %s\n", strings.Join(names, ", "))
	}
}

// DumpConfig pretty-prints the whole Config struct without colors.
func DumpConfig(out io.Writer, cfg Config) {
	prev := pp.ColoringEnabled
	pp.ColoringEnabled = false
	defer func() { pp.ColoringEnabled = prev }()
	pp.Fprintln(out, cfg)
}

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return string(ProfileDefault)
	}
	return s
}
