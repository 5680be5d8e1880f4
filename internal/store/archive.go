// Package store persists run history in SQLite. Every build and retrieval
// run is recorded; build runs additionally archive the entities snapshot
// and the compiled fact text, retrieval runs archive question/answer
// pairs. The archive lives at .onto/archive.db.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ontoforge/internal/logging"

	_ "modernc.org/sqlite"
)

// Archive is the on-disk run history.
type Archive struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID           string
	Phase        string
	Model        string
	Outcome      string
	Error        string
	Turns        int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// SnapshotRecord is the archived artifact pair of a build run.
type SnapshotRecord struct {
	RunID        string
	EntitiesJSON string
	OntologyText string
	Warnings     []string
	CreatedAt    time.Time
}

// AnswerRecord is one archived question/answer pair.
type AnswerRecord struct {
	RunID     string
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Open initializes the archive database at the given path.
func Open(path string) (*Archive, error) {
	logging.Store("Opening run archive at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	a := &Archive{db: db, dbPath: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// initialize creates the required tables.
func (a *Archive) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		model TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		turns INTEGER DEFAULT 0,
		tool_calls INTEGER DEFAULT 0,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);`

	snapshotsTable := `
	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT PRIMARY KEY REFERENCES runs(id),
		entities_json TEXT NOT NULL,
		ontology_text TEXT NOT NULL,
		warnings TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	answersTable := `
	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	runsIndex := `CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);`

	for _, stmt := range []string{runsTable, snapshotsTable, answersTable, runsIndex} {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

// RecordRun inserts or replaces one run record.
func (a *Archive) RecordRun(rec RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO runs
		(id, phase, model, outcome, error, turns, tool_calls, input_tokens, output_tokens, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Phase, rec.Model, rec.Outcome, rec.Error,
		rec.Turns, rec.ToolCalls, rec.InputTokens, rec.OutputTokens,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	logging.StoreDebug("Recorded run %s (%s, %s)", rec.ID, rec.Phase, rec.Outcome)
	return nil
}

// SaveSnapshot archives the build artifacts of a run.
func (a *Archive) SaveSnapshot(runID, entitiesJSON, ontologyText string, warnings []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO snapshots (run_id, entities_json, ontology_text, warnings)
		VALUES (?, ?, ?, ?)`,
		runID, entitiesJSON, ontologyText, strings.Join(warnings, "\n"))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	logging.StoreDebug("Saved snapshot for run %s (%d warnings)", runID, len(warnings))
	return nil
}

// SaveAnswer archives one question/answer pair for a retrieval run.
func (a *Archive) SaveAnswer(runID, question, answer string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		INSERT INTO answers (run_id, question, answer) VALUES (?, ?, ?)`,
		runID, question, answer)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of 0 means
// no limit.
func (a *Archive) ListRuns(limit int) ([]RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	query := `
		SELECT id, phase, model, outcome, error, turns, tool_calls,
		       input_tokens, output_tokens, started_at, finished_at
		FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Phase, &rec.Model, &rec.Outcome, &rec.Error,
			&rec.Turns, &rec.ToolCalls, &rec.InputTokens, &rec.OutputTokens,
			&rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRun returns one run by id.
func (a *Archive) GetRun(id string) (*RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var rec RunRecord
	err := a.db.QueryRow(`
		SELECT id, phase, model, outcome, error, turns, tool_calls,
		       input_tokens, output_tokens, started_at, finished_at
		FROM runs WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Phase, &rec.Model, &rec.Outcome, &rec.Error,
			&rec.Turns, &rec.ToolCalls, &rec.InputTokens, &rec.OutputTokens,
			&rec.StartedAt, &rec.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &rec, nil
}

// GetSnapshot returns the archived artifacts of a build run.
func (a *Archive) GetSnapshot(runID string) (*SnapshotRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var rec SnapshotRecord
	var warnings string
	err := a.db.QueryRow(`
		SELECT run_id, entities_json, ontology_text, warnings, created_at
		FROM snapshots WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &rec.EntitiesJSON, &rec.OntologyText, &warnings, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot for run %q not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if warnings != "" {
		rec.Warnings = strings.Split(warnings, "\n")
	}
	return &rec, nil
}

// Answers returns the archived answers of a retrieval run, oldest first.
func (a *Archive) Answers(runID string) ([]AnswerRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(`
		SELECT run_id, question, answer, created_at
		FROM answers WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var records []AnswerRecord
	for rows.Next() {
		var rec AnswerRecord
		if err := rows.Scan(&rec.RunID, &rec.Question, &rec.Answer, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
