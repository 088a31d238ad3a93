// internal/results/regrade.go
package results

import (
	"github.com/mwiater/lime/internal/grading"
	"github.com/mwiater/lime/internal/sheet"
)

// RegradeReport counts what a regrade touched.
type RegradeReport struct {
	Graded  int
	Correct int
	Changed int
	// Refreshed counts ground truths replaced from the sheet.
	Refreshed int
}

// Regrade recomputes every grade of outcome in place. When src is non-nil
// ground truths are first refreshed from the sheet's answers by question
// name; questions the sheet no longer has keep their recorded truth.
func Regrade(outcome *SheetOutcome, src *sheet.Sheet, liberal bool) (RegradeReport, error) {
	var report RegradeReport
	if src != nil {
		answers := make(map[string]*string, len(src.Questions))
		for _, q := range src.Questions {
			answers[q.Name] = q.Answer
		}
		for i := range outcome.Questions {
			q := &outcome.Questions[i]
			if a, ok := answers[q.Name]; ok && !equalPtr(a, q.GroundTruth) {
				q.GroundTruth = a
				report.Refreshed++
			}
		}
	}

	truths := make([]*string, len(outcome.Questions))
	completions := make([]*string, len(outcome.Questions))
	for i, q := range outcome.Questions {
		truths[i] = q.GroundTruth
		completions[i] = q.Completion
	}
	grades, err := grading.GradeArray(truths, completions, liberal)
	if err != nil {
		return report, err
	}

	style := grading.StyleFuzzy
	if liberal {
		style = grading.StyleLiberal
	}
	for i := range outcome.Questions {
		q := &outcome.Questions[i]
		if !equalBool(q.Grade.Correct, grades[i]) {
			report.Changed++
		}
		q.Grade = grading.Grade{Style: style, Correct: grades[i]}
		if grades[i] != nil {
			report.Graded++
			if *grades[i] {
				report.Correct++
			}
		}
	}
	return report, nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
