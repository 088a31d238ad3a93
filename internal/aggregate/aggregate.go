// internal/aggregate/aggregate.go

// Package aggregate loads many result artifacts into an in-memory SQLite
// table and answers cross-run questions about them: leaderboards, run
// counts and grade discrepancies.
package aggregate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/results"
)

// ErrNoArtifacts is returned when a pattern matches no result files.
var ErrNoArtifacts = errors.New("no result artifacts found")

// Store is an in-memory table of evaluated questions.
type Store struct {
	db *sql.DB
}

// LoadReport says what Load read and what it skipped.
type LoadReport struct {
	Files     int
	Questions int
	Skipped   map[string]error
}

// Open creates an empty store.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open aggregate store: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE questions (
			sheet        TEXT NOT NULL,
			sheet_file   TEXT,
			file         TEXT NOT NULL,
			model        TEXT NOT NULL,
			run_id       TEXT NOT NULL,
			name         TEXT NOT NULL,
			correct      INTEGER,
			grade_style  TEXT,
			error        TEXT,
			completion   TEXT,
			ground_truth TEXT,
			eval_time    REAL NOT NULL,
			ntokens_usr  INTEGER,
			ntokens_sys  INTEGER,
			ntokens_cmp  INTEGER
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create questions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CollectArtifacts expands pattern into result files. "." means every file
// in the working directory and a directory means every file inside it. Only
// regular .json files whose name starts with prefix are kept.
func CollectArtifacts(pattern, prefix string) ([]string, error) {
	switch {
	case pattern == "" || pattern == ".":
		pattern = "*"
	case isDir(pattern):
		pattern = filepath.Join(pattern, "*")
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no files match %s", ErrNoArtifacts, pattern)
	}

	var out []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		base := filepath.Base(m)
		if !strings.HasSuffix(base, ".json") || !strings.HasPrefix(base, prefix) {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: found %d files in %s but none named %s*.json (output_sheet_prefix)", ErrNoArtifacts, len(matches), pattern, prefix)
	}
	sort.Strings(out)
	return out, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Load reads every artifact into the table. Files that fail to parse or
// validate are skipped and listed in the report.
func (s *Store) Load(ctx context.Context, paths []string) (LoadReport, error) {
	report := LoadReport{Skipped: map[string]error{}}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO questions
		(sheet, sheet_file, file, model, run_id, name, correct, grade_style, error,
		 completion, ground_truth, eval_time, ntokens_usr, ntokens_sys, ntokens_cmp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return report, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		outcome, err := results.Read(path)
		if err != nil {
			logging.LogEvent("aggregate: skipping %s: %v", path, err)
			report.Skipped[path] = err
			continue
		}
		h := outcome.Header
		for _, q := range outcome.Questions {
			if _, err := stmt.ExecContext(ctx,
				h.SheetName, h.SheetFile, path, h.ModelName, h.RunID, q.Name,
				nullBool(q.Grade.Correct), q.Grade.Style, q.Error,
				q.Completion, q.GroundTruth, q.EvalTime,
				q.NTokens.Usr, q.NTokens.Sys, q.NTokens.Cmp,
			); err != nil {
				return report, fmt.Errorf("insert %s/%s: %w", path, q.Name, err)
			}
			report.Questions++
		}
		report.Files++
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}
	return report, nil
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}
