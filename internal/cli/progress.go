// internal/cli/progress.go
package lime

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mwiater/lime/internal/evaluation"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/results"
	"github.com/mwiater/lime/internal/sheet"
)

var (
	passMark = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	noteMark = color.New(color.FgYellow).SprintFunc()
)

// columnWidth is the width of each column of a question line.
const columnWidth = 20

// consoleProgress prints evaluation progress. Level 0 is silent, level 1
// prints one line per question and level 2 adds the question text and
// throughput. Whole lines are written under a lock so parallel sheets do not
// interleave mid-line.
type consoleProgress struct {
	mu      sync.Mutex
	out     io.Writer
	verbose int
	runID   string
}

var (
	_ evaluation.Progress    = (*consoleProgress)(nil)
	_ evaluation.RunObserver = (*consoleProgress)(nil)
)

func newConsoleProgress(out io.Writer, verbose int) *consoleProgress {
	return &consoleProgress{out: out, verbose: verbose}
}

func (p *consoleProgress) printf(level int, format string, args ...any) {
	if p.verbose < level {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *consoleProgress) RunStarted(model, runID string, sheetPaths []string) {
	p.mu.Lock()
	p.runID = runID
	p.mu.Unlock()
	p.printf(1, "Found %d sheets\n", len(sheetPaths))
	p.printf(2, "  %s\n", strings.Join(sheetPaths, "\n  "))
}

func (p *consoleProgress) BackendReady(b providers.Backend) {
	p.printf(1, "Model name: %s | Backend: %s | ready: %s\n", b.Name(), b.Kind(), passMark("true"))
}

func (p *consoleProgress) SheetParsed(path string, s *sheet.Sheet) {
	p.printf(1, "Processing sheet: %s\n", s.Name)
	warns := map[string][]string{}
	if len(s.Warnings) > 0 {
		warns[s.Name] = s.Warnings
	}
	for _, q := range s.Questions {
		if len(q.Warnings) > 0 {
			warns[q.Name] = q.Warnings
		}
	}
	if len(warns) == 0 {
		return
	}
	p.printf(1, "%s\n", noteMark(fmt.Sprintf("Sheet: %s has %d parse warnings", s.Name, len(warns))))
	if p.verbose > 1 {
		data, _ := json.MarshalIndent(warns, "", "  ")
		p.printf(2, "%s\n", data)
	}
}

func (p *consoleProgress) SheetStarted(s *sheet.Sheet, _ results.Header) {
	p.printf(1, "Found %d questions\n", len(s.Questions))
}

func (p *consoleProgress) QuestionStarted(int, int, sheet.Question) {}

func (p *consoleProgress) QuestionFinished(_, _ int, out results.EvaluationOutcome) {
	if p.verbose < 1 {
		return
	}
	cols := []string{pad(shorten(out.Name, columnWidth))}
	if p.verbose > 1 {
		cols = append(cols, pad(shorten(oneLine(out.QuestionUsr), columnWidth)))
	}
	cols = append(cols, gradeColumn(out), pad(fmt.Sprintf("%.2f secs", out.EvalTime)))
	if p.verbose > 1 {
		cols = append(cols, pad(tokensPerSecond(out)+" tok/sec"))
	}
	p.printf(1, "%s|\n", strings.Join(cols, "| "))
}

func (p *consoleProgress) SheetFinished(outcome *results.SheetOutcome) {
	sum := outcome.Summarize()
	p.printf(1, "Completed all %d questions\n", sum.Total)
	if sum.Errors > 0 {
		p.printf(1, "completion_errors: %s\n", failMark(sum.Errors))
	} else {
		p.printf(1, "completion_errors: 0\n")
	}
}

func (p *consoleProgress) SheetWritten(res evaluation.SheetResult) {
	switch {
	case res.Err != nil:
		p.printf(1, "%s %s: %v\n", failMark("failed"), res.SheetPath, res.Err)
	case res.OutputPath != "":
		p.printf(1, "wrote %s\n", res.OutputPath)
	}
}

// RunID returns the id announced by the last RunStarted.
func (p *consoleProgress) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

func gradeColumn(out results.EvaluationOutcome) string {
	label := "grade: "
	switch {
	case out.Error != nil:
		return padColored(label+"error", noteMark(label+"error"))
	case out.Grade.Correct == nil:
		return pad(label + "n/a")
	case *out.Grade.Correct:
		return padColored(label+"✅", passMark(label+"✅"))
	default:
		return padColored(label+"❌", failMark(label+"❌"))
	}
}

func tokensPerSecond(out results.EvaluationOutcome) string {
	if out.NTokens.Cmp == nil || *out.NTokens.Cmp <= 0 || out.EvalTime <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", float64(*out.NTokens.Cmp)/out.EvalTime)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func pad(s string) string {
	return padColored(s, s)
}

// padColored pads styled to columnWidth using the printable width of plain.
func padColored(plain, styled string) string {
	n := columnWidth - len([]rune(plain))
	if n < 1 {
		n = 1
	}
	return styled + strings.Repeat(" ", n)
}
