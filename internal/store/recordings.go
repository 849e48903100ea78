package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/uipilot/internal/device"
)

type RecordingStore struct {
	DB *sql.DB
}

func NewRecordingStore(dbPath string) (*RecordingStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			scenario TEXT,
			step_index INTEGER,
			kind TEXT,
			prompt TEXT,
			outcome TEXT,
			explanation TEXT,
			steps INTEGER,
			history TEXT,
			created_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS recordings_run_id ON recordings (run_id);`,
		`CREATE TABLE IF NOT EXISTS action_cache (
			scenario TEXT NOT NULL,
			step_key TEXT NOT NULL,
			actions TEXT NOT NULL,
			updated_at INTEGER,
			PRIMARY KEY (scenario, step_key)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &RecordingStore{DB: db}, nil
}

func (s *RecordingStore) Close() error {
	return s.DB.Close()
}

func (s *RecordingStore) SaveRecording(ctx context.Context, r Recording) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	history := string(r.History)
	if history == "" {
		history = "[]"
	}
	query := `INSERT INTO recordings (run_id, scenario, step_index, kind, prompt, outcome, explanation, steps, history, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.DB.ExecContext(ctx, query,
		r.RunID, r.Scenario, r.StepIndex, r.Kind, r.Prompt, r.Outcome, r.Explanation, r.Steps, history, r.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to save recording: %w", err)
	}
	return res.LastInsertId()
}

const recordingColumns = `id, run_id, scenario, step_index, kind, prompt, outcome, explanation, steps, history, created_at`

func scanRecording(row interface{ Scan(...any) error }) (Recording, error) {
	var r Recording
	var history string
	var created int64
	err := row.Scan(&r.ID, &r.RunID, &r.Scenario, &r.StepIndex, &r.Kind, &r.Prompt,
		&r.Outcome, &r.Explanation, &r.Steps, &history, &created)
	if err != nil {
		return Recording{}, err
	}
	r.History = json.RawMessage(history)
	r.CreatedAt = time.Unix(0, created)
	return r, nil
}

func (s *RecordingStore) GetRecording(ctx context.Context, id int64) (Recording, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("%w: id %d", ErrRecordingNotFound, id)
	}
	return r, err
}

// LastFailed returns the most recent recording of a run that did not complete.
func (s *RecordingStore) LastFailed(ctx context.Context, runID string) (Recording, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE run_id = ? AND outcome != 'completed' ORDER BY id DESC LIMIT 1`, runID)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("%w: no failed step in run %s", ErrRecordingNotFound, runID)
	}
	return r, err
}

// ListRecordings returns the newest recordings first.
func (s *RecordingStore) ListRecordings(ctx context.Context, limit int) ([]Recording, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveActions caches the primitive actions that completed a scenario step.
func (s *RecordingStore) SaveActions(ctx context.Context, scenario, stepKey string, actions []device.Action) error {
	data, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	query := `INSERT INTO action_cache (scenario, step_key, actions, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scenario, step_key) DO UPDATE SET actions = excluded.actions, updated_at = excluded.updated_at`
	_, err = s.DB.ExecContext(ctx, query, scenario, stepKey, string(data), time.Now().UnixNano())
	return err
}

// GetActions returns cached actions for a step; ok is false when nothing is cached.
func (s *RecordingStore) GetActions(ctx context.Context, scenario, stepKey string) (actions []device.Action, ok bool, err error) {
	var data string
	err = s.DB.QueryRowContext(ctx,
		`SELECT actions FROM action_cache WHERE scenario = ? AND step_key = ?`, scenario, stepKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal([]byte(data), &actions); err != nil {
		return nil, false, fmt.Errorf("corrupt action cache for %s/%s: %w", scenario, stepKey, err)
	}
	return actions, true, nil
}

func (s *RecordingStore) DeleteActions(ctx context.Context, scenario, stepKey string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM action_cache WHERE scenario = ? AND step_key = ?`, scenario, stepKey)
	return err
}
