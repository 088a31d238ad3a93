// internal/evaluation/runner.go
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providerfactory"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/results"
	"github.com/mwiater/lime/internal/sheet"
	"golang.org/x/sync/errgroup"
)

// BackendFactory builds one backend for model.
type BackendFactory func(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error)

// RunObserver receives run-level events. Sheet-level events go through the
// Driver's Progress.
type RunObserver interface {
	RunStarted(model, runID string, sheetPaths []string)
	BackendReady(backend providers.Backend)
	SheetParsed(path string, s *sheet.Sheet)
	SheetWritten(result SheetResult)
}

// SheetResult is the outcome of one sheet file.
type SheetResult struct {
	SheetPath  string
	OutputPath string
	Outcome    *results.SheetOutcome
	Err        error
}

// Runner evaluates a list of sheet files with one model and writes one
// artifact per sheet.
type Runner struct {
	Config *appconfig.RuntimeConfig
	// Model overrides Config.ModelName when set.
	Model string
	// OutputDir overrides Config.OutputDir. With both empty, artifacts are
	// written next to each sheet.
	OutputDir string
	DryRun    bool
	Driver    *Driver
	Observer  RunObserver
	// NewBackend defaults to providerfactory.New.
	NewBackend BackendFactory
}

type nopObserver struct{}

func (nopObserver) RunStarted(string, string, []string) {}
func (nopObserver) BackendReady(providers.Backend)      {}
func (nopObserver) SheetParsed(string, *sheet.Sheet)    {}
func (nopObserver) SheetWritten(SheetResult)            {}

func (r *Runner) model() string {
	if r.Model != "" {
		return r.Model
	}
	return r.Config.ModelName
}

func (r *Runner) observer() RunObserver {
	if r.Observer != nil {
		return r.Observer
	}
	return nopObserver{}
}

// Run evaluates sheetPaths. A backend that cannot be built or is not ready
// aborts the run before any sheet is evaluated. With jobs > 1, sheets run in
// parallel on separate backend instances; a primed backend is never used by
// two sheets at once. Per-sheet failures are collected and returned joined.
func (r *Runner) Run(ctx context.Context, sheetPaths []string) ([]SheetResult, error) {
	if r.Config == nil {
		return nil, fmt.Errorf("nil config provided to runner")
	}
	if len(sheetPaths) == 0 {
		return nil, fmt.Errorf("no input sheets")
	}
	newBackend := r.NewBackend
	if newBackend == nil {
		newBackend = providerfactory.New
	}
	driver := r.Driver
	if driver == nil {
		driver = &Driver{Liberal: r.Config.Liberal}
	}
	model := r.model()
	runID := NewRunID(r.Config.UUIDDigits)
	obs := r.observer()
	obs.RunStarted(model, runID, sheetPaths)

	workers := r.Config.Jobs
	if workers < 1 {
		workers = 1
	}
	if workers > len(sheetPaths) {
		workers = len(sheetPaths)
	}

	pool := make(chan providers.Backend, workers)
	defer func() {
		close(pool)
		for b := range pool {
			if err := b.Close(); err != nil {
				logging.LogEvent("closing backend %s: %v", b.Name(), err)
			}
		}
	}()
	for i := 0; i < workers; i++ {
		b, err := newBackend(r.Config, model)
		if err != nil {
			return nil, fmt.Errorf("create backend for %s: %w", model, err)
		}
		if i == 0 {
			if err := b.CheckReady(ctx); err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("backend %s not ready: %w", model, err)
			}
			obs.BackendReady(b)
		}
		pool <- b
	}

	out := make([]SheetResult, len(sheetPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range sheetPaths {
		i, path := i, path
		g.Go(func() error {
			if gctx.Err() != nil {
				out[i] = SheetResult{SheetPath: path, Err: gctx.Err()}
				return nil
			}
			backend := <-pool
			defer func() { pool <- backend }()

			out[i] = r.runSheet(gctx, driver, backend, path, model, runID)
			obs.SheetWritten(out[i])
			if errors.Is(out[i].Err, context.Canceled) {
				return out[i].Err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	var errs []error
	for _, res := range out {
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			errs = append(errs, fmt.Errorf("%s: %w", res.SheetPath, res.Err))
		}
	}
	if waitErr != nil {
		errs = append(errs, waitErr)
	}
	return out, errors.Join(errs...)
}

func (r *Runner) runSheet(ctx context.Context, driver *Driver, backend providers.Backend, path, model, runID string) SheetResult {
	res := SheetResult{SheetPath: path}

	s, err := sheet.ParseFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	r.observer().SheetParsed(path, s)
	if r.DryRun {
		return res
	}

	dir := r.OutputDir
	if dir == "" {
		dir = r.Config.OutputDir
	}
	if dir == "" {
		dir = filepath.Dir(path)
	}
	name := results.OutputFileName(path, r.Config.InputSheetPrefix, r.Config.OutputSheetPrefix, model, runID)
	res.OutputPath = filepath.Join(dir, name)

	var tmpPath string
	if r.Config.SaveTmpFile {
		tmpPath = filepath.Join(dir, results.TempFileName(name))
	}

	outcome, err := driver.EvalSheet(ctx, s, backend, SheetOptions{RunID: runID, TmpPath: tmpPath})
	res.Outcome = outcome
	if err != nil {
		// An interrupted sheet keeps only its temp snapshot.
		res.Err = err
		return res
	}

	if err := results.Write(res.OutputPath, outcome); err != nil {
		res.Err = fmt.Errorf("write results: %w", err)
		return res
	}
	if tmpPath != "" {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.LogEvent("removing temp file %s: %v", tmpPath, err)
		}
	}
	return res
}
