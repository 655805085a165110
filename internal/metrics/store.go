// Package metrics persists training and evaluation metrics of a run in a
// SQLite database next to the other run artifacts.
package metrics

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// EpisodeRecord is one finished training episode.
type EpisodeRecord struct {
	RunID      string    `json:"run_id"`
	Episode    int       `json:"episode"`
	Reward     float64   `json:"reward"`
	Length     int       `json:"length"`
	Epsilon    float64   `json:"epsilon"`
	EndReason  string    `json:"end_reason"`
	Timesteps  int       `json:"timesteps"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EvaluationRecord is one aggregated policy evaluation.
type EvaluationRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Episodes   int       `json:"episodes"`
	MeanReward float64   `json:"mean_reward"`
	StdReward  float64   `json:"std_reward"`
	MinReward  float64   `json:"min_reward"`
	MaxReward  float64   `json:"max_reward"`
	MeanLength float64   `json:"mean_length"`
	RecordedAt time.Time `json:"recorded_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	run_id      TEXT    NOT NULL,
	episode     INTEGER NOT NULL,
	reward      REAL    NOT NULL,
	length      INTEGER NOT NULL,
	epsilon     REAL    NOT NULL,
	end_reason  TEXT    NOT NULL,
	timesteps   INTEGER NOT NULL,
	recorded_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_run ON episodes(run_id, episode);
CREATE TABLE IF NOT EXISTS evaluations (
	id          TEXT PRIMARY KEY,
	run_id      TEXT    NOT NULL,
	episodes    INTEGER NOT NULL,
	mean_reward REAL    NOT NULL,
	std_reward  REAL    NOT NULL,
	min_reward  REAL    NOT NULL,
	max_reward  REAL    NOT NULL,
	mean_length REAL    NOT NULL,
	recorded_at TEXT    NOT NULL
);`

// Store wraps the run's metrics database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the metrics database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect metrics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init metrics schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordEpisode inserts one finished training episode.
func (s *Store) RecordEpisode(rec EpisodeRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO episodes (run_id, episode, reward, length, epsilon, end_reason, timesteps, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Episode, rec.Reward, rec.Length, rec.Epsilon, rec.EndReason, rec.Timesteps,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// Episodes returns the most recent episodes of a run, newest first. A
// non-positive limit returns all of them.
func (s *Store) Episodes(runID string, limit int) ([]EpisodeRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(
		`SELECT run_id, episode, reward, length, epsilon, end_reason, timesteps, recorded_at
		 FROM episodes WHERE run_id = ? ORDER BY episode DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRecord
	for rows.Next() {
		var rec EpisodeRecord
		var ts string
		if err := rows.Scan(&rec.RunID, &rec.Episode, &rec.Reward, &rec.Length,
			&rec.Epsilon, &rec.EndReason, &rec.Timesteps, &ts); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse episode timestamp: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordEvaluation inserts one evaluation summary, assigning it a fresh id.
func (s *Store) RecordEvaluation(rec EvaluationRecord) (EvaluationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO evaluations (id, run_id, episodes, mean_reward, std_reward, min_reward, max_reward, mean_length, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Episodes, rec.MeanReward, rec.StdReward,
		rec.MinReward, rec.MaxReward, rec.MeanLength,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return rec, fmt.Errorf("insert evaluation: %w", err)
	}
	return rec, nil
}

// Evaluations returns all evaluation summaries of a run, newest first.
func (s *Store) Evaluations(runID string) ([]EvaluationRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, episodes, mean_reward, std_reward, min_reward, max_reward, mean_length, recorded_at
		 FROM evaluations WHERE run_id = ? ORDER BY recorded_at DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var out []EvaluationRecord
	for rows.Next() {
		var rec EvaluationRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Episodes, &rec.MeanReward,
			&rec.StdReward, &rec.MinReward, &rec.MaxReward, &rec.MeanLength, &ts); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse evaluation timestamp: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
