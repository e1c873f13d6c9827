// Package task orchestrates one download run end to end: session
// provisioning, agent driving, download capture and artifact retrieval.
package task

import (
	"context"
	"io"
	"time"

	"github.com/italolelis/fetchpilot/internal/browserhub"
)

const (
	// maxStepsCeiling caps how many agent turns a single run may request.
	maxStepsCeiling = 15

	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Params are the per-run inputs. Zero values fall back to the runner's
// configured defaults.
type Params struct {
	TargetURL     string
	Instruction   string
	MaxSteps      int
	CorrelationID string
}

// Result is the outcome reported to callers. Success reflects whether the
// run completed its sequence; a run that captured no download within the
// timeout still succeeds, it just carries no file path.
type Result struct {
	Success            bool   `json:"success"`
	ResultMessage      string `json:"resultMessage"`
	DownloadedFilePath string `json:"downloadedFilePath,omitempty"`
}

func (r Result) Status() string {
	if r.Success {
		return StatusSucceeded
	}

	return StatusFailed
}

// Hub is the slice of the platform client a run needs.
type Hub interface {
	CreateSession(ctx context.Context, opts browserhub.SessionOptions) (*browserhub.Session, error)
	SetDownloadDir(ctx context.Context, sessionID, dir string) error
	ReadFile(ctx context.Context, sessionID, path string) (io.ReadCloser, error)
	DestroySession(ctx context.Context, sessionID string) error
}

// Driver abstracts the attached browser plus agent for one run.
type Driver interface {
	Attach(ctx context.Context, sess *browserhub.Session) error
	Navigate(ctx context.Context, url string) error
	Act(ctx context.Context, instruction string, maxSteps int) (string, error)
	AwaitDownload(ctx context.Context, timeout time.Duration) (string, error)
	Detach(ctx context.Context) error
}

// DriverFactory builds a fresh driver per run; drivers are single-use.
type DriverFactory func() Driver
