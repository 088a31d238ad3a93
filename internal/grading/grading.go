// internal/grading/grading.go

// Package grading judges free-text completions against expected answers.
// Matching is deliberately tolerant of case, punctuation and surrounding
// prose, while still rejecting answers that never state the expected text.
package grading

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Grading styles recorded with each grade.
const (
	StyleFuzzy   = "fuzzy"
	StyleLiberal = "liberal"
)

// ErrLengthMismatch is returned by GradeArray when the ground truths and
// completions are not parallel sequences.
var ErrLengthMismatch = errors.New("length mismatch")

// Grade is the judgment recorded for one question. Correct is nil when
// there was nothing to grade.
type Grade struct {
	Style   string  `json:"style"`
	Correct *bool   `json:"correct"`
	Error   *string `json:"error"`
}

var (
	stripSet    = ".,!?;:'\"()[]{}`"
	multiChoice = regexp.MustCompile(`^([A-Za-z])\)\s*(.+)$`)
	letterOnly  = regexp.MustCompile(`^([a-z])[[:punct:]]*$`)
	thinkBlock  = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// Normalize trims, lowercases, removes the punctuation set and collapses
// internal whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripSet, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// StripReasoning removes <think> blocks emitted by reasoning models, and
// anything after an unterminated opening tag.
func StripReasoning(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	if i := strings.Index(s, "<think>"); i >= 0 {
		s = s[:i]
	}
	return s
}

// FuzzyMatch reports whether completion states groundTruth. Strategies are
// tried in order: normalized equality, multiple-choice text (or, when
// liberal, a bare matching letter), then substring containment.
func FuzzyMatch(groundTruth, completion string, liberal bool) bool {
	truth := Normalize(groundTruth)
	comp := Normalize(StripReasoning(completion))

	if truth == comp {
		return true
	}
	if truth == "" {
		return false
	}

	if m := multiChoice.FindStringSubmatch(strings.TrimSpace(groundTruth)); m != nil {
		letter := strings.ToLower(m[1])
		choice := Normalize(m[2])
		if choice != "" && strings.Contains(comp, choice) {
			return true
		}
		if liberal {
			if lm := letterOnly.FindStringSubmatch(comp); lm != nil && lm[1] == letter {
				return true
			}
		}
	}

	return strings.Contains(comp, truth)
}

// GradeArray grades parallel sequences. A nil ground truth or completion
// yields a nil grade.
func GradeArray(truths, completions []*string, liberal bool) ([]*bool, error) {
	if len(truths) != len(completions) {
		return nil, fmt.Errorf("%w: %d ground truths, %d completions", ErrLengthMismatch, len(truths), len(completions))
	}
	grades := make([]*bool, len(truths))
	for i := range truths {
		if truths[i] == nil || completions[i] == nil {
			continue
		}
		ok := FuzzyMatch(*truths[i], *completions[i], liberal)
		grades[i] = &ok
	}
	return grades, nil
}

// GradeAnswer grades one completion. A panic inside matching is recorded
// in Grade.Error instead of propagating.
func GradeAnswer(completion, groundTruth *string, liberal bool) (g Grade) {
	g.Style = StyleFuzzy
	if liberal {
		g.Style = StyleLiberal
	}
	if completion == nil || groundTruth == nil {
		return g
	}
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			g.Correct = nil
			g.Error = &msg
		}
	}()
	ok := FuzzyMatch(*groundTruth, *completion, liberal)
	g.Correct = &ok
	return g
}
