// Package history keeps one row per training epoch in a sqlite database.
package history

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Epoch is the outcome of one training epoch.
type Epoch struct {
	RunID          string
	Epoch          int
	TrainLoss      float64
	ValidationLoss float64
	Accuracy       float64
	LearningRate   float64
	NonFinite      int
	Improved       bool
	RecordedAt     time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS epochs (
	run_id          TEXT NOT NULL,
	epoch           INTEGER NOT NULL,
	train_loss      REAL,
	validation_loss REAL,
	accuracy        REAL,
	learning_rate   REAL NOT NULL,
	non_finite      INTEGER NOT NULL,
	improved        INTEGER NOT NULL,
	recorded_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, epoch)
)`

type Store struct {
	db *sql.DB
}

// Open creates the database at path if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening history %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating history schema in %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Record stores e, replacing a previous row of the same run and epoch.
func (s *Store) Record(e Epoch) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO epochs
		(run_id, epoch, train_loss, validation_loss, accuracy, learning_rate, non_finite, improved, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Epoch, nullable(e.TrainLoss), nullable(e.ValidationLoss), nullable(e.Accuracy),
		e.LearningRate, e.NonFinite, e.Improved, e.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("error recording epoch %d of run %s: %w", e.Epoch, e.RunID, err)
	}
	return nil
}

// Epochs lists the epochs of a run in order.
func (s *Store) Epochs(runID string) ([]Epoch, error) {
	rows, err := s.db.Query(`SELECT run_id, epoch, train_loss, validation_loss, accuracy, learning_rate,
		non_finite, improved, recorded_at FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("error querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var result []Epoch
	for rows.Next() {
		var e Epoch
		var trainLoss, validationLoss, accuracy sql.NullFloat64
		if err := rows.Scan(&e.RunID, &e.Epoch, &trainLoss, &validationLoss, &accuracy, &e.LearningRate,
			&e.NonFinite, &e.Improved, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("error reading run %s: %w", runID, err)
		}
		e.TrainLoss = fromNullable(trainLoss)
		e.ValidationLoss = fromNullable(validationLoss)
		e.Accuracy = fromNullable(accuracy)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// sqlite has no NaN, non finite values are stored as NULL
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
