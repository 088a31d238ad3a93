// internal/aggregate/xlsx.go
package aggregate

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX writes the leaderboard, runs, questions and discrepancies to
// one workbook with a worksheet each.
func (s *Store) ExportXLSX(ctx context.Context, path string) error {
	board, err := s.Leaderboard(ctx)
	if err != nil {
		return err
	}
	runs, err := s.Runs(ctx)
	if err != nil {
		return err
	}
	questions, err := s.Questions(ctx)
	if err != nil {
		return err
	}
	disc, err := s.Discrepancies(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{
			name:   "leaderboard",
			header: []any{"sheet", "model", "runs", "total", "graded", "correct", "errors", "pct_correct", "mean_eval_time"},
			rows:   leaderboardRows(board),
		},
		{
			name:   "runs",
			header: []any{"sheet", "model", "runs", "unique_questions"},
			rows:   runRows(runs),
		},
		{
			name:   "questions",
			header: questionHeader,
			rows:   questionRows(questions),
		},
		{
			name:   "discrepancies",
			header: questionHeader,
			rows:   questionRows(disc),
		},
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, "A1", &sh.header); err != nil {
			return err
		}
		for r, row := range sh.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
				return fmt.Errorf("write %s row %d: %w", sh.name, r+2, err)
			}
		}
	}
	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

var questionHeader = []any{"sheet", "name", "model", "run_id", "correct", "completion", "ground_truth", "error", "eval_time"}

func leaderboardRows(in []LeaderboardRow) [][]any {
	out := make([][]any, 0, len(in))
	for _, r := range in {
		out = append(out, []any{r.Sheet, r.Model, r.Runs, r.Total, r.Graded, r.Correct, r.Errors, r.PctCorrect, r.MeanEvalTime})
	}
	return out
}

func runRows(in []RunRow) [][]any {
	out := make([][]any, 0, len(in))
	for _, r := range in {
		out = append(out, []any{r.Sheet, r.Model, r.Runs, r.UniqueQuestions})
	}
	return out
}

func questionRows(in []QuestionRow) [][]any {
	out := make([][]any, 0, len(in))
	for _, r := range in {
		var correct any
		if r.Correct != nil {
			correct = *r.Correct
		}
		out = append(out, []any{r.Sheet, r.Name, r.Model, r.RunID, correct, deref(r.Completion), deref(r.GroundTruth), deref(r.Error), r.EvalTime})
	}
	return out
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
