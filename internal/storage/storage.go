package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the persisted history of one download run.
type RunRecord struct {
	RunID         string
	Action        string
	CorrelationID string
	TargetURL     string
	Status        string
	ResultMessage string
	FilePath      string
	Executor      string
	CreatedAt     time.Time
	FinishedAt    time.Time
}

type RunReadRepository interface {
	GetRuns(limit int) ([]RunRecord, error)
	GetRun(runID string) (*RunRecord, error)
}

type RunWriteRepository interface {
	TrackRun(record RunRecord) error
	FinishRun(runID, status, resultMessage, filePath string) error
}

// GenerateExecutorID returns a unique string for this process
// (hostname+pid+random) so run records show which instance executed them.
func GenerateExecutorID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}
