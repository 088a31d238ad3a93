// internal/cli/agg.go
package lime

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/mwiater/lime/internal/aggregate"
	"github.com/mwiater/lime/internal/render"
	"github.com/spf13/cobra"
)

// aggCmd implements 'agg', which compares many result artifacts.
var aggCmd = &cobra.Command{
	Use:   "agg [dir|glob]",
	Short: "Aggregate result artifacts across models and runs",
	Long: `The 'agg' command loads every result artifact matched by the argument
("." for the working directory) and prints reports across them. With no report
flag a summary is printed: the leaderboard, the run counts and the first
questions. Output is styled as markdown when redirected or with --md.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgg,
}

type aggOptions struct {
	leaderboard   bool
	runs          bool
	questions     bool
	completions   bool
	discrepancies bool
	markdown      bool
	noFormat      bool
	verbose       bool
	xlsx          string
}

func init() {
	aggCmd.Flags().Bool("leaderboard", false, "per sheet and model share of correct answers")
	aggCmd.Flags().Bool("runs", false, "number of runs per sheet and model")
	aggCmd.Flags().Bool("questions", false, "every question of every run")
	aggCmd.Flags().Bool("completions", false, "every question with its completion")
	aggCmd.Flags().Bool("discrepancies", false, "questions graded differently across models or runs")
	aggCmd.Flags().Bool("md", false, "style tables as markdown")
	aggCmd.Flags().Bool("terminal", false, "style tables for the terminal even when redirected")
	aggCmd.Flags().Bool("no-format", false, "do not truncate long text or question lists")
	aggCmd.Flags().String("xlsx", "", "also export every report to this workbook")
	aggCmd.Flags().BoolP("verbose", "v", false, "print load counts")

	rootCmd.AddCommand(aggCmd)
}

func runAgg(cmd *cobra.Command, args []string) error {
	rc := GetConfig()
	if rc == nil {
		return fmt.Errorf("configuration not loaded")
	}
	pattern := "."
	if len(args) == 1 {
		pattern = args[0]
	}

	flags := cmd.Flags()
	var opts aggOptions
	opts.leaderboard, _ = flags.GetBool("leaderboard")
	opts.runs, _ = flags.GetBool("runs")
	opts.questions, _ = flags.GetBool("questions")
	opts.completions, _ = flags.GetBool("completions")
	opts.discrepancies, _ = flags.GetBool("discrepancies")
	opts.markdown, _ = flags.GetBool("md")
	opts.noFormat, _ = flags.GetBool("no-format")
	opts.verbose, _ = flags.GetBool("verbose")
	opts.xlsx, _ = flags.GetString("xlsx")
	terminal, _ := flags.GetBool("terminal")
	if !opts.markdown && !terminal && !isTerminal(cmd.OutOrStdout()) {
		opts.markdown = true
	}

	paths, err := aggregate.CollectArtifacts(pattern, rc.OutputSheetPrefix)
	if err != nil {
		return err
	}
	return aggregateArtifacts(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), paths, opts)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func aggregateArtifacts(ctx context.Context, out, errOut io.Writer, paths []string, opts aggOptions) error {
	store, err := aggregate.Open()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Load(ctx, paths)
	if err != nil {
		return err
	}
	if report.Files == 0 {
		return fmt.Errorf("%w: none of %d files could be read", aggregate.ErrNoArtifacts, len(paths))
	}
	if opts.verbose {
		n, sheets, err := store.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "questions found: %d\n", n)
		fmt.Fprintf(errOut, "unique sheets:   %d\n", sheets)
		for path, e := range report.Skipped {
			fmt.Fprintf(errOut, "skipped %s: %v\n", path, e)
		}
	}

	summary := !(opts.leaderboard || opts.runs || opts.questions || opts.completions || opts.discrepancies)
	if opts.leaderboard || summary {
		rows, err := store.Leaderboard(ctx)
		if err != nil {
			return err
		}
		section(out, "Leaderboard: sheet and model on pct_correct", leaderboardTable(rows, opts.markdown))
	}
	if opts.runs || summary {
		rows, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		section(out, "Runs: sheet and model on number of run ids", runsTable(rows, opts.markdown))
	}
	if opts.questions || opts.completions || summary {
		rows, err := store.Questions(ctx)
		if err != nil {
			return err
		}
		limit := 0
		if summary && !opts.markdown && !opts.noFormat {
			limit = 10
		}
		textWidth := 0
		if opts.completions && !opts.noFormat {
			textWidth = 30
			if opts.markdown {
				textWidth = 300
			}
		}
		section(out, "Questions", questionsTable(rows, opts.markdown, opts.completions, textWidth, limit))
	}
	if opts.discrepancies {
		rows, err := store.Discrepancies(ctx)
		if err != nil {
			return err
		}
		section(out, "Discrepancies: questions graded differently across runs", questionsTable(rows, opts.markdown, true, 20, 0))
	}

	if opts.xlsx != "" {
		if err := store.ExportXLSX(ctx, opts.xlsx); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.xlsx)
	}
	return nil
}

func section(out io.Writer, title, body string) {
	fmt.Fprintf(out, "### %s\n\n%s\n\n", title, body)
}

var (
	aggHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	aggCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// newTable returns a rounded table for the terminal or a pipe table for
// markdown.
func newTable(markdown bool, headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if markdown {
		return t.Border(lipgloss.MarkdownBorder()).BorderTop(false).BorderBottom(false)
	}
	return t.Border(lipgloss.RoundedBorder()).StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return aggHeaderStyle
		}
		return aggCellStyle
	})
}

func leaderboardTable(rows []aggregate.LeaderboardRow, markdown bool) string {
	t := newTable(markdown, "sheet", "model", "runs", "graded", "correct", "errors", "pct_correct", "mean secs")
	for _, r := range rows {
		t.Row(r.Sheet, r.Model, strconv.Itoa(r.Runs), strconv.Itoa(r.Graded), strconv.Itoa(r.Correct),
			strconv.Itoa(r.Errors), fmt.Sprintf("%.1f%%", r.PctCorrect*100), fmt.Sprintf("%.2f", r.MeanEvalTime))
	}
	return t.Render()
}

func runsTable(rows []aggregate.RunRow, markdown bool) string {
	t := newTable(markdown, "sheet", "model", "runs", "questions")
	for _, r := range rows {
		t.Row(r.Sheet, r.Model, strconv.Itoa(r.Runs), strconv.Itoa(r.UniqueQuestions))
	}
	return t.Render()
}

// questionsTable lists question rows. textWidth > 0 truncates completions;
// limit > 0 keeps only the first rows.
func questionsTable(rows []aggregate.QuestionRow, markdown, withCompletion bool, textWidth, limit int) string {
	headers := []string{"sheet", "question", "model", "run_id", "grade"}
	if withCompletion {
		headers = append(headers, "completion")
	}
	t := newTable(markdown, headers...)
	for i, r := range rows {
		if limit > 0 && i == limit {
			break
		}
		cells := []string{r.Sheet, r.Name, r.Model, r.RunID, render.GradeMark(r.Correct)}
		if withCompletion {
			cells = append(cells, completionCell(r, markdown, textWidth))
		}
		t.Row(cells...)
	}
	out := t.Render()
	if limit > 0 && len(rows) > limit {
		out += fmt.Sprintf("\n... %d more (use --questions or --no-format)", len(rows)-limit)
	}
	return out
}

func completionCell(r aggregate.QuestionRow, markdown bool, width int) string {
	text := "None"
	switch {
	case r.Error != nil:
		text = "error: " + *r.Error
	case r.Completion != nil:
		text = *r.Completion
	}
	text = oneLine(text)
	if width > 0 {
		text = shorten(text, width)
	}
	if markdown {
		text = escapePipes(text)
	}
	return text
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
