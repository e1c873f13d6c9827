package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/fetchpilot/internal/storage"
	"github.com/italolelis/fetchpilot/internal/telemetry"
)

// InstrumentedRunRepository wraps the run repositories with telemetry.
type InstrumentedRunRepository struct {
	read      *RunReadRepository
	write     *RunWriteRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedRunRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRunRepository {
	return &InstrumentedRunRepository{
		read:      NewRunReadRepository(dbConn),
		write:     NewRunWriteRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedRunRepository) GetRuns(limit int) ([]storage.RunRecord, error) {
	var result []storage.RunRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_runs", func(ctx context.Context) error {
		result, err = r.read.GetRuns(limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedRunRepository) GetRun(runID string) (*storage.RunRecord, error) {
	var result *storage.RunRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(context.Background(), "get_run", func(ctx context.Context) error {
		result, err = r.read.GetRun(runID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (r *InstrumentedRunRepository) TrackRun(record storage.RunRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "track_run", func(ctx context.Context) error {
		return r.write.TrackRun(record)
	})
}

func (r *InstrumentedRunRepository) FinishRun(runID, status, resultMessage, filePath string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "finish_run", func(ctx context.Context) error {
		return r.write.FinishRun(runID, status, resultMessage, filePath)
	})
}
