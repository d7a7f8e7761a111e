package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// RunLog records training runs and the predictions made with them.
type RunLog struct {
	db *sql.DB
}

// Open creates the database file and tables if needed.
func Open(path string) (*RunLog, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL UNIQUE,
        model_name VARCHAR(50),
        mae REAL,
        train_rows INTEGER,
        test_rows INTEGER,
        features INTEGER,
        trained_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        line INTEGER NOT NULL,
        predicted REAL NOT NULL,
        created_at DATETIME,
        UNIQUE(run_id, line, created_at)
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "create tables")
	}
	return &RunLog{db: database}, nil
}

func (l *RunLog) Close() error {
	return l.db.Close()
}

// TrainingLog is one row of the training_log table.
type TrainingLog struct {
	RunID     string    `json:"run_id"`
	ModelName string    `json:"model_name"`
	MAE       float64   `json:"mae"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	Features  int       `json:"features"`
	TrainedAt time.Time `json:"trained_at"`
}

// SaveTrainingLog appends a training run.
func (l *RunLog) SaveTrainingLog(ctx context.Context, entry TrainingLog) error {
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO training_log (run_id, model_name, mae, train_rows, test_rows, features, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.ModelName, entry.MAE, entry.TrainRows, entry.TestRows, entry.Features, entry.TrainedAt)
	return errors.Wrap(err, "insert training log")
}

// LoadTrainingLog returns every training run, newest first.
func (l *RunLog) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := l.db.QueryContext(ctx, `
        SELECT run_id, model_name, mae, train_rows, test_rows, features, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, errors.Wrap(err, "query training log")
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var entry TrainingLog
		if err := rows.Scan(&entry.RunID, &entry.ModelName, &entry.MAE, &entry.TrainRows, &entry.TestRows, &entry.Features, &entry.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// SavePredictions stores one row per input line in a single transaction.
func (l *RunLog) SavePredictions(ctx context.Context, runID string, lines []int, predictions []float64) error {
	if runID == "" {
		return errors.New("run id required")
	}
	if len(lines) != len(predictions) {
		return errors.New("lines/predictions length mismatch")
	}
	if len(predictions) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (run_id, line, predicted, created_at)
        VALUES (?, ?, ?, ?)
    `)
	if err != nil {
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, value := range predictions {
		if _, err := stmt.ExecContext(ctx, runID, lines[i], value, now); err != nil {
			return errors.Wrapf(err, "insert line %d", lines[i])
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// CountPredictions returns the number of predictions logged for runID.
func (l *RunLog) CountPredictions(ctx context.Context, runID string) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE run_id = ?`, runID).Scan(&count)
	return count, errors.Wrap(err, "count predictions")
}
