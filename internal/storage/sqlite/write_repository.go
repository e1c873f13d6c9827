package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/fetchpilot/internal/storage"
)

// RunWriteRepository implements storage.RunWriteRepository and stores run
// records in SQLite.
type RunWriteRepository struct {
	db *sql.DB
}

func NewRunWriteRepository(db *sql.DB) *RunWriteRepository {
	return &RunWriteRepository{db: db}
}

func (r *RunWriteRepository) TrackRun(record storage.RunRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (run_id, action, correlation_id, target_url, status, executor, created_at)
		VALUES (?, ?, ?, ?, 'running', ?, ?)`,
		record.RunID, record.Action, record.CorrelationID, record.TargetURL,
		record.Executor, createdAt.Format(time.RFC3339),
	)

	return err
}

// FinishRun records the terminal state of a run.
func (r *RunWriteRepository) FinishRun(runID, status, resultMessage, filePath string) error {
	res, err := r.db.Exec(
		`UPDATE runs SET status = ?, result_message = ?, file_path = ?, finished_at = ? WHERE run_id = ?`,
		status, resultMessage, filePath, time.Now().Format(time.RFC3339), runID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrRunNotFound
	}

	return nil
}
