// internal/cli/grade.go
package lime

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mwiater/lime/internal/render"
	"github.com/mwiater/lime/internal/results"
	"github.com/mwiater/lime/internal/sheet"
	"github.com/spf13/cobra"
)

// gradeCmd implements 'grade', which regrades an existing artifact.
var gradeCmd = &cobra.Command{
	Use:   "grade <output.json>",
	Short: "Regrade a result artifact",
	Long: `The 'grade' command reruns grading over the completions stored in a result
artifact. With -i the ground truths are first refreshed from the input sheet,
matching questions by name. Nothing is written unless -w is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().StringP("input", "i", "", "input sheet to refresh ground truths from")
	gradeCmd.Flags().BoolP("overwrite", "w", false, "write the new grades back to the artifact")
	gradeCmd.Flags().BoolP("liberal", "l", false, "use liberal grading")
	gradeCmd.Flags().BoolP("verbose", "v", false, "print refresh details")

	rootCmd.AddCommand(gradeCmd)
}

func runGrade(cmd *cobra.Command, args []string) error {
	rc := GetConfig()
	if rc == nil {
		return fmt.Errorf("configuration not loaded")
	}
	path := args[0]
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("file not found: %s", path)
	}
	inputPath, _ := cmd.Flags().GetString("input")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return gradeArtifact(cmd.OutOrStdout(), path, inputPath, rc.Liberal, overwrite, verbose)
}

func gradeArtifact(out io.Writer, path, inputPath string, liberal, overwrite, verbose bool) error {
	outcome, err := results.Read(path)
	if err != nil {
		return err
	}

	var src *sheet.Sheet
	if inputPath != "" {
		if src, err = sheet.ParseFile(inputPath); err != nil {
			return err
		}
	}

	orig := gradeList(outcome)
	report, err := results.Regrade(outcome, src, liberal)
	if err != nil {
		return fmt.Errorf("regrade %s: %w", path, err)
	}

	if src != nil && verbose {
		fmt.Fprintf(out, "ground_truth entries from input: %s\n", inputPath)
		fmt.Fprintf(out, "found:       %d\n", len(src.Questions))
		fmt.Fprintf(out, "overwritten: %d\n", report.Refreshed)
	}
	fmt.Fprintf(out, "orig_grades:   %s\n", orig)
	fmt.Fprintf(out, "new_grades:    %s\n", gradeList(outcome))
	fmt.Fprintf(out, "changed: %d, correct: %d/%d graded\n", report.Changed, report.Correct, report.Graded)

	if !overwrite {
		fmt.Fprintln(out, "Done. To overwrite run with -w.")
		return nil
	}
	if err := results.Write(path, outcome); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

func gradeList(outcome *results.SheetOutcome) string {
	marks := make([]string, len(outcome.Questions))
	for i, q := range outcome.Questions {
		marks[i] = render.GradeMark(q.Grade.Correct)
	}
	return "[" + strings.Join(marks, ", ") + "]"
}
