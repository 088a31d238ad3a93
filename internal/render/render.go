// internal/render/render.go

// Package render turns result artifacts into markdown reports, terminal
// output and summary tables.
package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mwiater/lime/internal/results"
)

// DefaultWordWrap is the column width used by Terminal when width <= 0.
const DefaultWordWrap = 80

// Markdown renders one artifact: a header block, then one section per
// question with its prompt, completion, ground truth and grade.
func Markdown(outcome *results.SheetOutcome) string {
	var b strings.Builder
	h := outcome.Header

	fmt.Fprintf(&b, "# %s\n\n", h.SheetName)
	fmt.Fprintf(&b, "**Run ID:** %s  \n", h.RunID)
	fmt.Fprintf(&b, "**Model name:** %s  \n", h.ModelName)
	if h.BackendKind != "" {
		fmt.Fprintf(&b, "**Backend:** %s  \n", h.BackendKind)
	}
	if h.Version != "" {
		fmt.Fprintf(&b, "**lime version:** %s  \n", h.Version)
	}
	if !h.StartTime.IsZero() {
		fmt.Fprintf(&b, "**Started:** %s  \n", h.StartTime.Format("2006-01-02 15:04:05"))
	}

	sum := outcome.Summarize()
	fmt.Fprintf(&b, "**Score:** %d/%d correct (%d graded, %d errors)\n\n", sum.Correct, sum.Total, sum.Graded, sum.Errors)

	b.WriteString("**System Prompt:**\n")
	if len(outcome.Questions) > 0 && outcome.Questions[0].QuestionSys != nil {
		b.WriteString(*outcome.Questions[0].QuestionSys)
		b.WriteString("\n")
	} else {
		b.WriteString("None\n")
	}
	if len(h.Params) > 0 {
		b.WriteString(details("infer_params", h.Params))
	}
	b.WriteString("\n")

	for _, q := range outcome.Questions {
		fmt.Fprintf(&b, "### %s\n\n", q.Name)
		if len(q.Meta) > 0 {
			b.WriteString(details("meta_data", stringAny(q.Meta)))
		}
		if len(q.GenParams) > 0 {
			b.WriteString(details("gen_params", q.GenParams))
		}

		fmt.Fprintf(&b, "\n**Question:**\n%s\n", q.QuestionUsr)
		if q.Error != nil {
			fmt.Fprintf(&b, "\n**Error:**\n%s\n", *q.Error)
		}
		fmt.Fprintf(&b, "\n**Completion:**\n%s\n", orNone(q.Completion))
		if q.GroundTruth != nil {
			fmt.Fprintf(&b, "\n**Ground Truth:**\n%s\n", *q.GroundTruth)
		}
		fmt.Fprintf(&b, "\n**Grade:** %s (%s)\n", GradeMark(q.Grade.Correct), q.Grade.Style)
		if q.Grade.Error != nil {
			fmt.Fprintf(&b, "\n**Grading error:** %s\n", *q.Grade.Error)
		}
		fmt.Fprintf(&b, "\n_%.2f secs_\n\n", q.EvalTime)
	}
	return b.String()
}

// Terminal renders markdown for a terminal with glamour.
func Terminal(markdown string, width int) (string, error) {
	if width <= 0 {
		width = DefaultWordWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return r.Render(markdown)
}

// GradeMark prints a grade as correct, wrong or n/a.
func GradeMark(correct *bool) string {
	switch {
	case correct == nil:
		return "n/a"
	case *correct:
		return "correct"
	default:
		return "wrong"
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// SummaryTable prints one row per artifact.
func SummaryTable(outcomes []*results.SheetOutcome) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("SHEET", "MODEL", "RUN", "CORRECT", "GRADED", "ERRORS", "TOTAL").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, o := range outcomes {
		s := o.Summarize()
		t.Row(
			o.Header.SheetName,
			o.Header.ModelName,
			o.Header.RunID,
			strconv.Itoa(s.Correct),
			strconv.Itoa(s.Graded),
			strconv.Itoa(s.Errors),
			strconv.Itoa(s.Total),
		)
	}
	return t.Render()
}

func details(label string, m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "\n<details>\n<summary>%s:</summary>\n\n", label)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, m[k])
	}
	b.WriteString("</details>\n")
	return b.String()
}

func stringAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func orNone(s *string) string {
	if s == nil {
		return "None"
	}
	return *s
}
