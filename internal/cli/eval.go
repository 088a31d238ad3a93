// internal/cli/eval.go
package lime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mwiater/lime/internal/evaluation"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/render"
	"github.com/mwiater/lime/internal/results"
	"github.com/mwiater/lime/internal/sheet"
	"github.com/spf13/cobra"
)

// evalCmd implements 'eval', which runs question sheets against one model
// and writes a result artifact per sheet.
var evalCmd = &cobra.Command{
	Use:   "eval [input]",
	Short: "Evaluate question sheets against a model",
	Long: `The 'eval' command runs every question of one sheet, or of every input
sheet in a directory, against the configured model. Each completion is graded
against the sheet's answer and one JSON artifact is written per sheet.

The input may be given positionally (a file or a directory) or with
-f/--sheet or -d/--dir. Ctrl-C stops after the question in flight.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringP("sheet", "f", "", "evaluate a single sheet file")
	evalCmd.Flags().StringP("dir", "d", "", "evaluate every input sheet in this directory")
	evalCmd.Flags().StringP("model", "m", "", "model to evaluate (overrides model_name)")
	evalCmd.Flags().StringP("output", "o", "", "directory for result artifacts (defaults to the sheet's directory)")
	evalCmd.Flags().BoolP("dry-run", "y", false, "parse sheets and check the backend without prompting")
	evalCmd.Flags().CountP("verbose", "v", "print progress (-vv for question text and throughput)")
	evalCmd.Flags().IntP("jobs", "j", 0, "sheets evaluated in parallel, each on its own backend")
	evalCmd.Flags().Bool("no-cache", false, "disable the local prompt cache")
	evalCmd.Flags().BoolP("liberal", "l", false, "use liberal grading")
	evalCmd.Flags().Int("timeout", 0, "backend request timeout in seconds")

	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	rc := GetConfig()
	if rc == nil {
		return fmt.Errorf("configuration not loaded")
	}

	var input string
	if len(args) == 1 {
		input = args[0]
	}
	sheetFile, _ := cmd.Flags().GetString("sheet")
	sheetsDir, _ := cmd.Flags().GetString("dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetCount("verbose")

	paths, err := resolveSheetInputs(input, sheetFile, sheetsDir, rc.InputSheetPrefix)
	if err != nil {
		return err
	}
	if rc.OutputDir != "" && !dryRun {
		if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	console := newConsoleProgress(out, verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runner := &evaluation.Runner{
		Config: rc,
		DryRun: dryRun,
		Driver: &evaluation.Driver{
			Liberal:  rc.Liberal,
			Version:  appVersion,
			Progress: console,
		},
		Observer:   console,
		NewBackend: newBackend,
	}
	sheetResults, runErr := runner.Run(ctx, paths)
	reportEval(out, console.RunID(), dryRun, sheetResults)

	switch {
	case runErr == nil:
		return nil
	case errors.Is(ctx.Err(), context.Canceled):
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("Interrupted. Completed sheets were written; partial sheets keep only their tmp snapshot."))
		if rest := withoutCanceled(runErr); rest != nil {
			return rest
		}
		return context.Canceled
	}
	if hint := providers.Hint(runErr); hint != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("hint: %s", hint))
	}
	return runErr
}

func reportEval(out io.Writer, runID string, dryRun bool, sheetResults []evaluation.SheetResult) {
	if dryRun {
		fmt.Fprintf(out, "Dry run: %d sheets parsed, nothing evaluated.\n", len(sheetResults))
		return
	}
	var outcomes []*results.SheetOutcome
	for _, res := range sheetResults {
		if res.Err == nil && res.Outcome != nil {
			outcomes = append(outcomes, res.Outcome)
		}
	}
	if len(outcomes) == 0 {
		return
	}
	fmt.Fprintln(out, render.SummaryTable(outcomes))
	fmt.Fprintf(out, "complete run_id: %s\n", runID)
}

// withoutCanceled drops context.Canceled from a joined run error.
func withoutCanceled(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	var keep []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, context.Canceled) {
			keep = append(keep, e)
		}
	}
	return errors.Join(keep...)
}

// resolveSheetInputs turns the positional input and the -f/-d flags into a
// list of sheet files. A positional path fills whichever of the two flags
// matches its type; exactly one must end up set.
func resolveSheetInputs(input, sheetFile, sheetsDir, prefix string) ([]string, error) {
	if input != "" {
		info, err := os.Stat(input)
		switch {
		case err != nil:
			return nil, fmt.Errorf("input path does not exist: %s", input)
		case info.IsDir():
			sheetsDir = input
		default:
			sheetFile = input
		}
	}

	switch {
	case sheetFile == "" && sheetsDir == "":
		return nil, fmt.Errorf("required argument missing: input (a sheet file or directory)")
	case sheetFile != "" && sheetsDir != "":
		return nil, fmt.Errorf("cannot use both -f/--sheet and -d/--dir")
	case sheetFile != "":
		info, err := os.Stat(sheetFile)
		if err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("file not found: %s", sheetFile)
		}
		return []string{sheetFile}, nil
	}

	info, err := os.Stat(sheetsDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", sheetsDir)
	}
	paths, err := sheet.Collect(sheetsDir, prefix, ".md")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		abs, _ := filepath.Abs(sheetsDir)
		return nil, fmt.Errorf("no input files found in: %s", abs)
	}
	return paths, nil
}
