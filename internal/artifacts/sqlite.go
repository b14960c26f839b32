package artifacts

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run is one completed pipeline execution in the history store.
type Run struct {
	ID               int64     `db:"id" json:"id"`
	Target           string    `db:"target" json:"target"`
	CrowdingScore    float64   `db:"crowding_score" json:"crowding_score"`
	TotalCompetitors int       `db:"total_competitors" json:"total_competitors"`
	Mode             string    `db:"mode" json:"mode"`
	StartedAt        time.Time `db:"started_at" json:"started_at"`
	CompletedAt      time.Time `db:"completed_at" json:"completed_at"`
	ResultJSON       string    `db:"result_json" json:"-"`
}

// ErrRunNotFound reports a lookup for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	target            TEXT NOT NULL,
	crowding_score    REAL NOT NULL DEFAULT 0,
	total_competitors INTEGER NOT NULL DEFAULT 0,
	mode              TEXT NOT NULL DEFAULT '',
	started_at        TEXT NOT NULL,
	completed_at      TEXT NOT NULL,
	result_json       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_runs_target ON runs (target);
`

// RunStore keeps completed runs in SQLite, write-through.
type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error { return s.db.Close() }

// Save records a run and returns its assigned id. The full result is
// stored as JSON so the report can be re-rendered later.
func (s *RunStore) Save(target string, score float64, totalCompetitors int, mode string, startedAt, completedAt time.Time, result any) (int64, error) {
	blob, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO runs (target, crowding_score, total_competitors, mode, started_at, completed_at, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		target, score, totalCompetitors, mode,
		startedAt.UTC().Format(time.RFC3339Nano),
		completedAt.UTC().Format(time.RFC3339Nano),
		string(blob),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

type runRow struct {
	ID               int64   `db:"id"`
	Target           string  `db:"target"`
	CrowdingScore    float64 `db:"crowding_score"`
	TotalCompetitors int     `db:"total_competitors"`
	Mode             string  `db:"mode"`
	StartedAt        string  `db:"started_at"`
	CompletedAt      string  `db:"completed_at"`
	ResultJSON       string  `db:"result_json"`
}

func (r runRow) toRun() Run {
	started, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	completed, _ := time.Parse(time.RFC3339Nano, r.CompletedAt)
	return Run{
		ID:               r.ID,
		Target:           r.Target,
		CrowdingScore:    r.CrowdingScore,
		TotalCompetitors: r.TotalCompetitors,
		Mode:             r.Mode,
		StartedAt:        started,
		CompletedAt:      completed,
		ResultJSON:       r.ResultJSON,
	}
}

// List returns the most recent runs, newest first.
func (s *RunStore) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	if err := s.db.Select(&rows, `SELECT * FROM runs ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRun())
	}
	return out, nil
}

func (s *RunStore) Get(id int64) (Run, error) {
	var row runRow
	if err := s.db.Get(&row, `SELECT * FROM runs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return row.toRun(), nil
}
