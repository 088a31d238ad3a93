// internal/results/results.go

// Package results defines the JSON artifact written for every evaluated
// sheet and the helpers that name, write, read and re-grade it.
package results

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mwiater/lime/internal/grading"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// Header describes one evaluation run of one sheet.
type Header struct {
	SheetName   string         `json:"sheet_name"`
	SheetFile   string         `json:"sheet_fn,omitempty"`
	RunID       string         `json:"run_id"`
	ModelName   string         `json:"name_model"`
	BackendKind string         `json:"backend_kind,omitempty"`
	Params      map[string]any `json:"infer_params"`
	Version     string         `json:"lime_version,omitempty"`
	StartTime   time.Time      `json:"start_time"`
}

// TokenCounts holds token counts for the user prompt, system prompt and
// completion. A count is nil when the text was absent and -1 when the
// backend could not tokenize it.
type TokenCounts struct {
	Usr *int `json:"usr"`
	Sys *int `json:"sys"`
	Cmp *int `json:"cmp"`
}

// EvaluationOutcome is the record for one question.
type EvaluationOutcome struct {
	Name        string            `json:"name"`
	Meta        map[string]string `json:"meta_data"`
	GenParams   map[string]any    `json:"gen_params"`
	GroundTruth *string           `json:"ground_truth"`
	QuestionSys *string           `json:"question_sys"`
	QuestionUsr string            `json:"question_usr"`
	Completion  *string           `json:"completion"`
	Error       *string           `json:"error"`
	EvalTime    float64           `json:"eval_time"`
	NTokens     TokenCounts       `json:"ntokens"`
	Grade       grading.Grade     `json:"grading"`
}

// SheetOutcome is the whole artifact for one sheet.
type SheetOutcome struct {
	Header    Header              `json:"header"`
	Questions []EvaluationOutcome `json:"questions"`
}

// Summary counts the outcomes of a sheet.
type Summary struct {
	Total   int
	Graded  int
	Correct int
	Errors  int
}

// Summarize tallies questions, grades and errors.
func (s *SheetOutcome) Summarize() Summary {
	var sum Summary
	for _, q := range s.Questions {
		sum.Total++
		if q.Error != nil {
			sum.Errors++
		}
		if q.Grade.Correct != nil {
			sum.Graded++
			if *q.Grade.Correct {
				sum.Correct++
			}
		}
	}
	return sum
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName makes a model name usable inside a file name.
func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, "_")
}

// OutputFileName derives the artifact name for a sheet: the sheet's base
// name with inputKeyword replaced by outputPrefix, then the model and run id.
// "sheets/input-two.md" becomes "output-two-<model>-<run>.json".
func OutputFileName(sheetPath, inputKeyword, outputPrefix, model, runID string) string {
	base := filepath.Base(sheetPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if inputKeyword != "" {
		base = strings.Replace(base, inputKeyword, "", 1)
	}
	return fmt.Sprintf("%s%s-%s-%s.json", outputPrefix, base, safeName(model), runID)
}

// TempFileName is the name of the crash-recovery snapshot for an artifact.
func TempFileName(outputName string) string {
	return "tmp." + outputName
}

// Write stores the artifact as indented JSON. The file is written to a
// sibling temp path first and renamed into place.
func Write(path string, outcome *SheetOutcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}
	partial := path + ".partial"
	if err := os.WriteFile(partial, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// Read loads an artifact and validates it against the result schema.
func Read(path string) (*SheetOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var outcome SheetOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return &outcome, nil
}

// Validate checks raw artifact JSON against the result schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("results failed validation: %s", strings.Join(details, "; "))
}
