// internal/render/render_test.go
package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/lime/internal/grading"
	"github.com/mwiater/lime/internal/results"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func sample() *results.SheetOutcome {
	sys := "Answer briefly.\n"
	return &results.SheetOutcome{
		Header: results.Header{
			SheetName: "Arithmetic",
			RunID:     "ab12",
			ModelName: "gpt-4o",
			Params:    map[string]any{"max_tokens": 20, "temperature": 0.0},
			StartTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Questions: []results.EvaluationOutcome{
			{
				Name:        "Q-1",
				Meta:        map[string]string{"max_tokens": "20"},
				GenParams:   map[string]any{"max_tokens": 20},
				QuestionSys: &sys,
				QuestionUsr: "2+2?",
				Completion:  strp("four"),
				GroundTruth: strp("four"),
				EvalTime:    0.5,
				Grade:       grading.Grade{Style: "fuzzy", Correct: boolp(true)},
			},
			{
				Name:        "Q-2",
				QuestionSys: &sys,
				QuestionUsr: "crash",
				Error:       strp("backend exploded"),
				Grade:       grading.Grade{Style: "fuzzy"},
			},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sample())

	assert.True(t, strings.HasPrefix(md, "# Arithmetic\n"))
	assert.Contains(t, md, "**Run ID:** ab12")
	assert.Contains(t, md, "**Model name:** gpt-4o")
	assert.Contains(t, md, "**Score:** 1/2 correct (1 graded, 1 errors)")
	assert.Contains(t, md, "**System Prompt:**\nAnswer briefly.\n")
	assert.Contains(t, md, "<summary>infer_params:</summary>\n\n- max_tokens: 20\n- temperature: 0\n")
	assert.Contains(t, md, "### Q-1")
	assert.Contains(t, md, "**Grade:** correct (fuzzy)")
	assert.Contains(t, md, "**Error:**\nbackend exploded")
	assert.Contains(t, md, "**Completion:**\nNone")
	assert.Contains(t, md, "**Grade:** n/a (fuzzy)")
	assert.Less(t, strings.Index(md, "### Q-1"), strings.Index(md, "### Q-2"))
}

func TestMarkdownWithoutQuestions(t *testing.T) {
	md := Markdown(&results.SheetOutcome{Header: results.Header{SheetName: "Empty", RunID: "x"}})
	assert.Contains(t, md, "**System Prompt:**\nNone")
}

func TestTerminal(t *testing.T) {
	out, err := Terminal("# Title\n\nbody text", 40)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body text")
}

func TestSummaryTable(t *testing.T) {
	out := SummaryTable([]*results.SheetOutcome{sample()})
	for _, want := range []string{"SHEET", "Arithmetic", "gpt-4o", "ab12"} {
		assert.Contains(t, out, want)
	}
}

func TestGradeMark(t *testing.T) {
	assert.Equal(t, "n/a", GradeMark(nil))
	assert.Equal(t, "correct", GradeMark(boolp(true)))
	assert.Equal(t, "wrong", GradeMark(boolp(false)))
}
