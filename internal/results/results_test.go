package results

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwiater/lime/internal/grading"
	"github.com/mwiater/lime/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func intp(n int) *int       { return &n }

func sampleOutcome() *SheetOutcome {
	return &SheetOutcome{
		Header: Header{
			SheetName:   "Sheet-Three",
			SheetFile:   "input-three.md",
			RunID:       "a1b2",
			ModelName:   "gpt-3.5-turbo",
			BackendKind: "openai",
			Params:      map[string]any{"max_tokens": 100, "temperature": 0.0},
			Version:     "dev",
			StartTime:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Questions: []EvaluationOutcome{
			{
				Name:        "Q-1",
				Meta:        map[string]string{"max_tokens": "20"},
				GenParams:   map[string]any{"max_tokens": 20},
				GroundTruth: strp("C) The worm"),
				QuestionUsr: "Q: What did the early bird get?",
				Completion:  strp("The worm."),
				EvalTime:    0.25,
				NTokens:     TokenCounts{Usr: intp(9), Cmp: intp(3)},
				Grade:       grading.Grade{Style: grading.StyleFuzzy, Correct: boolp(true)},
			},
			{
				Name:        "Q-2",
				GroundTruth: strp("saves nine"),
				QuestionUsr: "Complete the saying: A stitch in time...",
				Error:       strp("network down"),
				EvalTime:    0.1,
				Grade:       grading.Grade{Style: grading.StyleFuzzy},
			},
		},
	}
}

func TestOutputFileName(t *testing.T) {
	tests := []struct {
		path, model, want string
	}{
		{"sheets/input-two.md", "gpt-3.5-turbo", "output-two-gpt-3.5-turbo-ab12.json"},
		{"input.md", "claude-3-haiku", "output-claude-3-haiku-ab12.json"},
		{"dir/myinput_set.md", "models/mistral 7b", "outputmy_set-models_mistral_7b-ab12.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputFileName(tt.path, "input", "output", tt.model, "ab12"), tt.path)
	}
	assert.Equal(t, "tmp.output-x.json", TempFileName("output-x.json"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "output-three-gpt-a1b2.json")
	want := sampleOutcome()
	require.NoError(t, Write(path, want))

	_, err := os.Stat(path + ".partial")
	assert.True(t, os.IsNotExist(err))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, want.Header.RunID, got.Header.RunID)
	assert.True(t, want.Header.StartTime.Equal(got.Header.StartTime))
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "The worm.", *got.Questions[0].Completion)
	assert.Nil(t, got.Questions[1].Completion)
	assert.Equal(t, "network down", *got.Questions[1].Error)
	assert.Nil(t, got.Questions[0].NTokens.Sys)
	assert.Equal(t, 9, *got.Questions[0].NTokens.Usr)
}

func TestReadRejectsInvalidArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"header":{"sheet_name":"s"},"questions":[{"name":"q"}]}`), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")
	assert.Contains(t, err.Error(), "run_id")
}

func TestSummarize(t *testing.T) {
	sum := sampleOutcome().Summarize()
	assert.Equal(t, Summary{Total: 2, Graded: 1, Correct: 1, Errors: 1}, sum)
}

func TestRegradeRefreshesAnswers(t *testing.T) {
	outcome := sampleOutcome()
	outcome.Questions[1].Error = nil
	outcome.Questions[1].Completion = strp("It saves ten.")

	src := &sheet.Sheet{Questions: []sheet.Question{
		{Name: "Q-1", Answer: strp("C) The worm")},
		{Name: "Q-2", Answer: strp("saves ten")},
	}}
	report, err := Regrade(outcome, src, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Refreshed)
	assert.Equal(t, 2, report.Graded)
	assert.Equal(t, 2, report.Correct)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, "saves ten", *outcome.Questions[1].GroundTruth)
	assert.True(t, *outcome.Questions[1].Grade.Correct)
}

func TestRegradeLiberalLetter(t *testing.T) {
	outcome := sampleOutcome()
	outcome.Questions[0].Completion = strp("C.")

	report, err := Regrade(outcome, nil, false)
	require.NoError(t, err)
	assert.False(t, *outcome.Questions[0].Grade.Correct)
	assert.Equal(t, 0, report.Correct)

	report, err = Regrade(outcome, nil, true)
	require.NoError(t, err)
	assert.Equal(t, grading.StyleLiberal, outcome.Questions[0].Grade.Style)
	assert.True(t, *outcome.Questions[0].Grade.Correct)
	assert.Equal(t, 1, report.Changed)
	assert.Nil(t, outcome.Questions[1].Grade.Correct)
}
