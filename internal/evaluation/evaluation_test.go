// internal/evaluation/evaluation_test.go
package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/providers/providertest"
	"github.com/mwiater/lime/internal/results"
	"github.com/mwiater/lime/internal/sheet"
)

const arithmeticSheet = "# Arithmetic\n" +
	"\n" +
	"```meta\n" +
	"max_tokens: 20\n" +
	"```\n" +
	"\n" +
	"Answer briefly.\n" +
	"\n" +
	"## Q-1\n" +
	"\n" +
	"four\n" +
	"\n" +
	"### answer\n" +
	"four\n" +
	"\n" +
	"## Q-2\n" +
	"\n" +
	"```meta\n" +
	"temperature: 0.7\n" +
	"```\n" +
	"\n" +
	"crash\n" +
	"\n" +
	"### answer\n" +
	"anything\n" +
	"\n" +
	"## Q-3\n" +
	"\n" +
	"blue sky\n" +
	"\n" +
	"### answer\n" +
	"green\n"

// echoOrCrash upper-cases the user prompt and fails on "crash".
func echoOrCrash(_ int, req providers.PromptRequest) providers.PromptResponse {
	if req.User != nil && *req.User == "crash" {
		return providers.Failure(errors.New("backend exploded"))
	}
	return providers.Success(strings.ToUpper(*req.User))
}

func parseSheet(t *testing.T) *sheet.Sheet {
	t.Helper()
	s, err := sheet.Parse([]byte(arithmeticSheet))
	require.NoError(t, err)
	require.Len(t, s.Questions, 3)
	return s
}

func TestEvalSheetRecordsEveryQuestion(t *testing.T) {
	stub := providertest.New("stub-7b")
	stub.Reply = echoOrCrash
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := &Driver{Version: "1.2.3", Now: func() time.Time { return start }}

	out, err := d.EvalSheet(context.Background(), parseSheet(t), stub, SheetOptions{RunID: "ab12"})
	require.NoError(t, err)

	assert.Equal(t, "Arithmetic", out.Header.SheetName)
	assert.Equal(t, "ab12", out.Header.RunID)
	assert.Equal(t, "stub-7b", out.Header.ModelName)
	assert.Equal(t, "1.2.3", out.Header.Version)
	assert.Equal(t, start, out.Header.StartTime)
	assert.Equal(t, 20, out.Header.Params["max_tokens"])

	require.Len(t, out.Questions, 3)
	q1, q2, q3 := out.Questions[0], out.Questions[1], out.Questions[2]

	require.NotNil(t, q1.Completion)
	assert.Equal(t, "FOUR", *q1.Completion)
	assert.Nil(t, q1.Error)
	require.NotNil(t, q1.Grade.Correct)
	assert.True(t, *q1.Grade.Correct)
	assert.Equal(t, "fuzzy", q1.Grade.Style)
	assert.Equal(t, 1, *q1.NTokens.Usr)
	assert.Equal(t, 2, *q1.NTokens.Sys)
	assert.Equal(t, 1, *q1.NTokens.Cmp)

	assert.Nil(t, q2.Completion)
	require.NotNil(t, q2.Error)
	assert.Contains(t, *q2.Error, "backend exploded")
	assert.Nil(t, q2.Grade.Correct)
	assert.Nil(t, q2.NTokens.Cmp)

	require.NotNil(t, q3.Grade.Correct)
	assert.False(t, *q3.Grade.Correct)

	calls := stub.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 20, calls[0].Params.MaxTokensOr(0))
	require.NotNil(t, calls[1].Params.Temperature)
	assert.Equal(t, 0.7, *calls[1].Params.Temperature)
	assert.Equal(t, 0.0, calls[2].Params.TemperatureOr(-1), "question overrides must not leak")
}

func TestEvalSheetPrimesCacheOnce(t *testing.T) {
	stub := providertest.NewCaching("cached")
	d := &Driver{}

	_, err := d.EvalSheet(context.Background(), parseSheet(t), stub, SheetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Answer briefly.\n"}, stub.Primed())

	stub.Caching = false
	_, err = d.EvalSheet(context.Background(), parseSheet(t), stub, SheetOptions{})
	require.NoError(t, err)
	assert.Len(t, stub.Primed(), 1, "disabled cache must not be primed")
}

func TestEvalSheetStopsBetweenQuestionsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := providertest.New("stub")
	stub.Reply = func(n int, req providers.PromptRequest) providers.PromptResponse {
		cancel()
		return providers.Success("FOUR")
	}
	tmp := filepath.Join(t.TempDir(), "tmp.output.json")

	out, err := (&Driver{}).EvalSheet(ctx, parseSheet(t), stub, SheetOptions{RunID: "x", TmpPath: tmp})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	require.Len(t, out.Questions, 1, "the call in flight completes, the next is not started")
	assert.NotNil(t, out.Questions[0].Completion)

	snap, err := results.Read(tmp)
	require.NoError(t, err)
	assert.Len(t, snap.Questions, 1)
}

func TestNewRunID(t *testing.T) {
	assert.Len(t, NewRunID(4), 4)
	assert.Len(t, NewRunID(0), 32)
	assert.NotEqual(t, NewRunID(12), NewRunID(12))
}

func writeSheets(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte(arithmeticSheet), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func runtimeConfig(jobs int) *appconfig.RuntimeConfig {
	return &appconfig.RuntimeConfig{Config: appconfig.Config{
		ModelName:         "stub-7b",
		UUIDDigits:        4,
		InputSheetPrefix:  "input",
		OutputSheetPrefix: "output",
		Jobs:              jobs,
		SaveTmpFile:       true,
	}}
}

func TestRunnerWritesOneArtifactPerSheet(t *testing.T) {
	dir := t.TempDir()
	paths := writeSheets(t, dir, "input-a.md", "input-b.md", "input-c.md")

	var built []*providertest.Stub
	var count atomic.Int32
	r := &Runner{
		Config: runtimeConfig(2),
		NewBackend: func(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error) {
			count.Add(1)
			s := providertest.New(model)
			s.Reply = echoOrCrash
			built = append(built, s)
			return s, nil
		},
	}

	res, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.EqualValues(t, 2, count.Load(), "one backend per worker")

	runID := res[0].Outcome.Header.RunID
	for i, sr := range res {
		require.NoError(t, sr.Err)
		assert.Equal(t, paths[i], sr.SheetPath)
		assert.Equal(t, runID, sr.Outcome.Header.RunID)
		assert.True(t, strings.HasPrefix(filepath.Base(sr.OutputPath), "output-"))
		assert.Contains(t, sr.OutputPath, "-stub-7b-"+runID+".json")

		got, err := results.Read(sr.OutputPath)
		require.NoError(t, err)
		assert.Len(t, got.Questions, 3)

		_, err = os.Stat(filepath.Join(dir, results.TempFileName(filepath.Base(sr.OutputPath))))
		assert.True(t, os.IsNotExist(err), "temp snapshot removed after durable write")
	}
	for _, b := range built {
		assert.True(t, b.Closed())
	}
}

func TestRunnerKeepsSheetMetaPerSheet(t *testing.T) {
	dir := t.TempDir()
	sheetA := "# A\n\n```meta\nseed: 7\nmax_tokens: 29\n```\n\n## Q-1\n\none\n\n## Q-2\n\n```meta\nseed: 999\n```\n\ntwo\n"
	sheetB := "# B\n\n## Q-1\n\nthree\n"
	pathA, pathB := filepath.Join(dir, "input-a.md"), filepath.Join(dir, "input-b.md")
	require.NoError(t, os.WriteFile(pathA, []byte(sheetA), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte(sheetB), 0o644))

	profile := genparams.Merge(genparams.Defaults(), genparams.Params{MaxTokens: genparams.Int(50), Seed: genparams.Int64(1)})
	stub := providertest.New("stub-7b")
	stub.ParamState = providers.NewParamState(profile)
	r := &Runner{
		Config:     runtimeConfig(1),
		NewBackend: func(*appconfig.RuntimeConfig, string) (providers.Backend, error) { return stub, nil },
	}

	res, err := r.Run(context.Background(), []string{pathA, pathB})
	require.NoError(t, err)
	require.Len(t, res, 2)

	calls := stub.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 29, calls[0].Params.MaxTokensOr(0))
	assert.EqualValues(t, 7, *calls[0].Params.Seed)
	assert.Equal(t, 29, calls[1].Params.MaxTokensOr(0), "sheet meta applies under question meta")
	assert.EqualValues(t, 999, *calls[1].Params.Seed)
	assert.Equal(t, 50, calls[2].Params.MaxTokensOr(0), "sheet A meta must not reach sheet B")
	assert.EqualValues(t, 1, *calls[2].Params.Seed)

	assert.Equal(t, 29, res[0].Outcome.Header.Params["max_tokens"])
	assert.Equal(t, 50, res[1].Outcome.Header.Params["max_tokens"])
	assert.EqualValues(t, 999, res[0].Outcome.Questions[1].GenParams["seed"])
	assert.Equal(t, profile.String(), stub.GenParams().String(), "backend params are never updated by the driver")
}

func TestRunnerDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	paths := writeSheets(t, dir, "input-a.md")
	r := &Runner{
		Config: runtimeConfig(1),
		DryRun: true,
		NewBackend: func(*appconfig.RuntimeConfig, string) (providers.Backend, error) {
			return providertest.New("stub"), nil
		},
	}
	res, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	assert.Nil(t, res[0].Outcome)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunnerAbortsWhenBackendFails(t *testing.T) {
	paths := writeSheets(t, t.TempDir(), "input-a.md")

	r := &Runner{
		Config: runtimeConfig(1),
		NewBackend: func(*appconfig.RuntimeConfig, string) (providers.Backend, error) {
			return nil, providers.ConfigurationError("OPENAI_API_KEY is not set")
		},
	}
	_, err := r.Run(context.Background(), paths)
	require.ErrorIs(t, err, providers.ErrConfiguration)

	notReady := providertest.New("stub")
	notReady.Ready = providers.NetworkError(errors.New("dial tcp: refused"))
	r.NewBackend = func(*appconfig.RuntimeConfig, string) (providers.Backend, error) { return notReady, nil }
	_, err = r.Run(context.Background(), paths)
	require.ErrorIs(t, err, providers.ErrNetwork)
	assert.True(t, notReady.Closed())
	assert.Empty(t, notReady.Calls())
}

func TestRunnerCollectsSheetErrors(t *testing.T) {
	dir := t.TempDir()
	paths := append(writeSheets(t, dir, "input-a.md"), filepath.Join(dir, "input-missing.md"))
	r := &Runner{
		Config: runtimeConfig(1),
		NewBackend: func(*appconfig.RuntimeConfig, string) (providers.Backend, error) {
			return providertest.New("stub"), nil
		},
	}
	res, err := r.Run(context.Background(), paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input-missing.md")
	assert.NoError(t, res[0].Err)
	assert.Error(t, res[1].Err)
}
