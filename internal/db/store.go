package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patientflow/backend/internal/models"
)

const historyTable = "appointment_history"

var historyColumns = []string{"doctor_id", "hour", "day_of_week", "queue_length_at_arrival", "avg_consultation_time", "actual_wait_minutes"}

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS appointment_history (
	id BIGSERIAL PRIMARY KEY,
	doctor_id INT NOT NULL,
	hour SMALLINT NOT NULL CHECK (hour BETWEEN 0 AND 23),
	day_of_week SMALLINT NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
	queue_length_at_arrival INT NOT NULL CHECK (queue_length_at_arrival >= 0),
	avg_consultation_time DOUBLE PRECISION NOT NULL CHECK (avg_consultation_time > 0),
	actual_wait_minutes DOUBLE PRECISION NOT NULL CHECK (actual_wait_minutes >= 0)
)`

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EnsureSchema creates the history table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, createHistoryTable)
	return err
}

func (s *Store) Name() string {
	return "postgres:" + historyTable
}

// LoadHistory returns the whole training dataset in insertion order.
func (s *Store) LoadHistory(ctx context.Context) ([]models.HistoricalRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT doctor_id, hour, day_of_week, queue_length_at_arrival, avg_consultation_time, actual_wait_minutes
		FROM appointment_history
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoricalRecord
	for rows.Next() {
		var r models.HistoricalRecord
		if err := rows.Scan(&r.DoctorID, &r.Hour, &r.DayOfWeek, &r.QueueLengthAtArrival, &r.AvgConsultationTime, &r.ActualWaitMinutes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceHistory swaps the stored dataset for records in one transaction.
func (s *Store) ReplaceHistory(ctx context.Context, records []models.HistoricalRecord) (int64, error) {
	var inserted int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE appointment_history RESTART IDENTITY`); err != nil {
			return err
		}
		n, err := s.insertHistory(ctx, tx, records)
		inserted = n
		return err
	})
	return inserted, err
}

func (s *Store) insertHistory(ctx context.Context, tx pgx.Tx, records []models.HistoricalRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{r.DoctorID, r.Hour, r.DayOfWeek, r.QueueLengthAtArrival, r.AvgConsultationTime, r.ActualWaitMinutes})
	}
	return tx.CopyFrom(ctx, pgx.Identifier{historyTable}, historyColumns, pgx.CopyFromRows(rows))
}
