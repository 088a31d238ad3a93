// internal/evaluation/driver.go

// Package evaluation runs question sheets against a backend: it prompts the
// model for each question, times the call, counts tokens, grades the
// completion and accumulates the result artifact.
package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/grading"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/results"
	"github.com/mwiater/lime/internal/sheet"
)

// Progress receives loop events. Implementations must not block for long;
// they run on the evaluation goroutine.
type Progress interface {
	SheetStarted(s *sheet.Sheet, header results.Header)
	QuestionStarted(index, total int, q sheet.Question)
	QuestionFinished(index, total int, out results.EvaluationOutcome)
	SheetFinished(outcome *results.SheetOutcome)
}

// NopProgress ignores every event.
type NopProgress struct{}

func (NopProgress) SheetStarted(*sheet.Sheet, results.Header)            {}
func (NopProgress) QuestionStarted(int, int, sheet.Question)             {}
func (NopProgress) QuestionFinished(int, int, results.EvaluationOutcome) {}
func (NopProgress) SheetFinished(*results.SheetOutcome)                  {}

// SheetOptions are the per-sheet settings of EvalSheet.
type SheetOptions struct {
	// RunID is shared by every sheet of one run.
	RunID string
	// TmpPath, when set, receives a snapshot of the partial artifact after
	// every question.
	TmpPath string
}

// Driver evaluates sheets. The zero value grades in fuzzy style, reports
// nothing and uses the wall clock.
type Driver struct {
	Liberal  bool
	Version  string
	Progress Progress
	Now      func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) progress() Progress {
	if d.Progress != nil {
		return d.Progress
	}
	return NopProgress{}
}

// NewRunID returns the first digits hex characters of a random UUID.
func NewRunID(digits int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if digits <= 0 || digits > len(id) {
		return id
	}
	return id[:digits]
}

// EvalSheet evaluates every question of s in order. Per-question backend
// failures are recorded in the outcome and the loop continues. The context
// is checked between questions only: a call in flight always completes, and
// on cancellation the partial outcome is returned with ctx.Err().
func (d *Driver) EvalSheet(ctx context.Context, s *sheet.Sheet, backend providers.Backend, opts SheetOptions) (*results.SheetOutcome, error) {
	if s == nil {
		return nil, fmt.Errorf("nil sheet")
	}
	if backend == nil {
		return nil, fmt.Errorf("nil backend")
	}
	progress := d.progress()

	// Sheet and question meta are per-call layers over the backend's params.
	// The backend itself is never updated, so a pooled backend carries no
	// meta from one sheet into the next.
	base := backend.GenParams()
	sheetLayer := genparams.FromMeta(s.Meta)

	runID := opts.RunID
	if runID == "" {
		runID = NewRunID(4)
	}
	outcome := &results.SheetOutcome{
		Header: results.Header{
			SheetName:   s.Name,
			SheetFile:   s.FileName,
			RunID:       runID,
			ModelName:   backend.Name(),
			BackendKind: string(backend.Kind()),
			Params:      genparams.Merge(base, sheetLayer).Map(),
			Version:     d.Version,
			StartTime:   d.now(),
		},
		Questions: make([]results.EvaluationOutcome, 0, len(s.Questions)),
	}

	// A sheet without a system prompt primes an empty one so every question
	// still starts from the same saved state.
	if cb, ok := backend.(providers.CachingBackend); ok && cb.UsesPromptCache() {
		var system string
		if s.Text != nil {
			system = *s.Text
		}
		if err := cb.PrimeCache(context.WithoutCancel(ctx), system); err != nil {
			return nil, fmt.Errorf("prime prompt cache for sheet %q: %w", s.Name, err)
		}
	}

	ntokensSys := countTokens(backend, s.Text)

	progress.SheetStarted(s, outcome.Header)
	total := len(s.Questions)
	for i, q := range s.Questions {
		if err := ctx.Err(); err != nil {
			logging.LogEvent("evaluation of %s interrupted after %d/%d questions", s.Name, i, total)
			return outcome, err
		}
		progress.QuestionStarted(i, total, q)

		out := d.evalQuestion(ctx, backend, q, sheetLayer, base, ntokensSys)
		outcome.Questions = append(outcome.Questions, out)

		if opts.TmpPath != "" {
			if err := results.Write(opts.TmpPath, outcome); err != nil {
				logging.LogEvent("temp snapshot %s not written: %v", opts.TmpPath, err)
			}
		}
		progress.QuestionFinished(i, total, out)
	}
	progress.SheetFinished(outcome)
	return outcome, nil
}

func (d *Driver) evalQuestion(ctx context.Context, backend providers.Backend, q sheet.Question, sheetLayer, base genparams.Params, ntokensSys *int) results.EvaluationOutcome {
	layer := genparams.Merge(sheetLayer, genparams.FromMeta(q.Meta))
	overrides := layer.Map()
	usr := q.TextUsr

	start := time.Now()
	ntokensUsr := countTokens(backend, &usr)
	resp := backend.PromptModel(context.WithoutCancel(ctx), providers.PromptRequest{
		System:    q.TextSys,
		User:      &usr,
		Overrides: overrides,
	})
	elapsed := time.Since(start)

	out := results.EvaluationOutcome{
		Name:        q.Name,
		Meta:        q.Meta,
		GenParams:   genparams.Merge(base, layer).Map(),
		GroundTruth: q.Answer,
		QuestionSys: q.TextSys,
		QuestionUsr: q.TextUsr,
		EvalTime:    elapsed.Seconds(),
	}
	if resp.Err != nil {
		msg := resp.Err.Error()
		out.Error = &msg
		logging.LogEvent("question %s failed: %v", q.Name, resp.Err)
	} else {
		out.Completion = resp.Completion
	}

	out.NTokens = results.TokenCounts{
		Usr: ntokensUsr,
		Sys: ntokensSys,
		Cmp: countTokens(backend, out.Completion),
	}
	out.Grade = grading.GradeAnswer(out.Completion, out.GroundTruth, d.Liberal)
	return out
}

// countTokens returns nil for absent text so the artifact distinguishes
// "no text" from the -1 "cannot tokenize" sentinel.
func countTokens(backend providers.Backend, text *string) *int {
	if text == nil {
		return nil
	}
	n := backend.CountTokens(text)
	return &n
}
