// internal/aggregate/queries.go
package aggregate

import (
	"context"
	"database/sql"
	"fmt"
)

// LeaderboardRow scores one model on one sheet across all its runs.
type LeaderboardRow struct {
	Sheet        string
	Model        string
	Runs         int
	Total        int
	Graded       int
	Correct      int
	Errors       int
	PctCorrect   float64
	MeanEvalTime float64
}

// Leaderboard ranks models per sheet by share of graded questions answered
// correctly.
func (s *Store) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sheet, model,
		       COUNT(DISTINCT run_id),
		       COUNT(*),
		       COUNT(correct),
		       COALESCE(SUM(correct), 0),
		       COUNT(error),
		       AVG(eval_time)
		FROM questions
		GROUP BY sheet, model
		ORDER BY sheet,
		         CASE WHEN COUNT(correct) = 0 THEN 0
		              ELSE CAST(SUM(correct) AS REAL) / COUNT(correct) END DESC,
		         model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Sheet, &r.Model, &r.Runs, &r.Total, &r.Graded, &r.Correct, &r.Errors, &r.MeanEvalTime); err != nil {
			return nil, err
		}
		if r.Graded > 0 {
			r.PctCorrect = float64(r.Correct) / float64(r.Graded)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunRow counts the runs and distinct questions per sheet and model.
type RunRow struct {
	Sheet           string
	Model           string
	Runs            int
	UniqueQuestions int
}

// Runs lists sheet/model pairs with the most runs first.
func (s *Store) Runs(ctx context.Context) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sheet, model, COUNT(DISTINCT run_id), COUNT(DISTINCT name)
		FROM questions
		GROUP BY sheet, model
		ORDER BY COUNT(DISTINCT run_id) DESC, sheet, model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.Sheet, &r.Model, &r.Runs, &r.UniqueQuestions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QuestionRow is one question of one run.
type QuestionRow struct {
	Sheet       string
	Name        string
	Model       string
	RunID       string
	Correct     *bool
	Completion  *string
	GroundTruth *string
	Error       *string
	EvalTime    float64
}

const questionColumns = `sheet, name, model, run_id, correct, completion, ground_truth, error, eval_time`

func scanQuestions(rows *sql.Rows) ([]QuestionRow, error) {
	defer rows.Close()
	var out []QuestionRow
	for rows.Next() {
		var (
			r       QuestionRow
			correct sql.NullInt64
			comp    sql.NullString
			truth   sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&r.Sheet, &r.Name, &r.Model, &r.RunID, &correct, &comp, &truth, &errText, &r.EvalTime); err != nil {
			return nil, err
		}
		if correct.Valid {
			b := correct.Int64 == 1
			r.Correct = &b
		}
		r.Completion = fromNull(comp)
		r.GroundTruth = fromNull(truth)
		r.Error = fromNull(errText)
		out = append(out, r)
	}
	return out, rows.Err()
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Questions lists every loaded question ordered by sheet, name and run.
func (s *Store) Questions(ctx context.Context) ([]QuestionRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+`
		FROM questions ORDER BY sheet, name, model, run_id`)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// Discrepancies lists the runs of every question whose grade is not the
// same across models and runs of the same sheet. Ungraded runs are ignored.
func (s *Store) Discrepancies(ctx context.Context) ([]QuestionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		WHERE q.correct IS NOT NULL
		  AND EXISTS (
		      SELECT 1 FROM questions d
		      WHERE d.sheet = q.sheet AND d.name = q.name
		        AND d.correct IS NOT NULL
		      GROUP BY d.sheet, d.name
		      HAVING COUNT(DISTINCT d.correct) > 1)
		ORDER BY sheet, name, model, run_id`)
	if err != nil {
		return nil, fmt.Errorf("discrepancy query: %w", err)
	}
	return scanQuestions(rows)
}

// Count returns the number of loaded questions and distinct sheets.
func (s *Store) Count(ctx context.Context) (questions, sheets int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT sheet) FROM questions`).Scan(&questions, &sheets)
	return questions, sheets, err
}
