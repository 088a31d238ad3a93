// internal/cli/check.go
package lime

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mwiater/lime/internal/appconfig"
	"github.com/mwiater/lime/internal/providerfactory"
	"github.com/mwiater/lime/internal/providers"
	"github.com/spf13/cobra"
)

// checkTimeout bounds each backend readiness check.
const checkTimeout = 30 * time.Second

// checkCmd implements 'check', which reports what lime would run with.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration, secrets and backend readiness",
	Long: `The 'check' command prints the lime version, the configuration files that
were merged, the API keys found (masked) and whether the configured model's
backend is ready: credentials accepted, network reachable and model known.
With --all every model under 'models:' is checked.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("model", "m", "", "model to check (overrides model_name)")
	checkCmd.Flags().Bool("all", false, "check every configured model")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	rc := GetConfig()
	if rc == nil {
		return fmt.Errorf("configuration not loaded")
	}
	all, _ := cmd.Flags().GetBool("all")
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "lime version: %s\n\n", appVersion)
	appconfig.ShowConfig(out, rc)
	fmt.Fprintln(out)

	models := []string{rc.ModelName}
	if all {
		models = configuredModels(rc)
	}
	failed := 0
	for _, model := range models {
		if !checkModel(cmd.Context(), out, rc, model) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d backends not ready", failed, len(models))
	}
	return nil
}

func configuredModels(rc *appconfig.RuntimeConfig) []string {
	seen := map[string]bool{rc.ModelName: true}
	models := []string{rc.ModelName}
	names := make([]string, 0, len(rc.Models))
	for name := range rc.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			models = append(models, name)
		}
	}
	return models
}

// checkModel prints one readiness line and reports whether the backend is
// ready.
func checkModel(ctx context.Context, out io.Writer, rc *appconfig.RuntimeConfig, model string) bool {
	ok := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	kind, err := providerfactory.ResolveKind(rc.Config, model)
	if err != nil {
		printCheckFailure(out, fail, model, "", err)
		return false
	}
	backend, err := newBackend(rc, model)
	if err != nil {
		printCheckFailure(out, fail, model, kind, err)
		return false
	}
	defer backend.Close()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	start := time.Now()
	if err := backend.CheckReady(ctx); err != nil {
		printCheckFailure(out, fail, model, kind, err)
		return false
	}
	fmt.Fprintf(out, "%-6s %s (%s) is ready [%s]\n", ok("OK"), model, kind, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "       params: %s\n", backend.GenParams())
	return true
}

func printCheckFailure(out io.Writer, fail func(a ...any) string, model string, kind providers.Kind, err error) {
	label := model
	if kind != "" {
		label = fmt.Sprintf("%s (%s)", model, kind)
	}
	fmt.Fprintf(out, "%-6s %s: %v\n", fail("FAIL"), label, err)
	if hint := providers.Hint(err); hint != "" {
		fmt.Fprintf(out, "       hint: %s\n", hint)
	}
}
