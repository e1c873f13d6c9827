package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/fetchpilot/internal/storage"
)

type RunReadRepository struct {
	db *sql.DB
}

func NewRunReadRepository(dbConn *sql.DB) *RunReadRepository {
	return &RunReadRepository{db: dbConn}
}

// GetRuns returns the most recent runs, newest first, up to a limit.
func (r *RunReadRepository) GetRuns(limit int) ([]storage.RunRecord, error) {
	rows, err := r.db.Query(
		`SELECT
			run_id,
			action,
			correlation_id,
			target_url,
			status,
			result_message,
			file_path,
			executor,
			created_at,
			finished_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []storage.RunRecord

	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, record)
	}

	return runs, rows.Err()
}

func (r *RunReadRepository) GetRun(runID string) (*storage.RunRecord, error) {
	row := r.db.QueryRow(
		`SELECT
			run_id,
			action,
			correlation_id,
			target_url,
			status,
			result_message,
			file_path,
			executor,
			created_at,
			finished_at
		FROM runs
		WHERE run_id = ?`, runID)

	record, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrRunNotFound
	}

	if err != nil {
		return nil, err
	}

	return &record, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (storage.RunRecord, error) {
	var record storage.RunRecord

	var resultMessage, filePath sql.NullString

	var createdAt, finishedAt sql.NullString

	err := s.Scan(
		&record.RunID,
		&record.Action,
		&record.CorrelationID,
		&record.TargetURL,
		&record.Status,
		&resultMessage,
		&filePath,
		&record.Executor,
		&createdAt,
		&finishedAt,
	)
	if err != nil {
		return record, err
	}

	record.ResultMessage = resultMessage.String
	record.FilePath = filePath.String

	if createdAt.Valid {
		record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}

	if finishedAt.Valid {
		record.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt.String)
	}

	return record, nil
}
