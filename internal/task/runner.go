package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/fetchpilot/internal/browserhub"
	"github.com/italolelis/fetchpilot/internal/capture"
	"github.com/italolelis/fetchpilot/internal/logctx"
	"github.com/italolelis/fetchpilot/internal/task/progress"
)

const dirPerm = 0755

// Metrics is the slice of telemetry a run reports into. A nil Metrics is
// valid and disables reporting.
type Metrics interface {
	RecordRun(ctx context.Context, status string, duration time.Duration)
	RecordDownloadCaptured(ctx context.Context)
	RecordDownloadTimeout(ctx context.Context)
}

// RunnerOptions carry the run defaults shared by all entry points.
type RunnerOptions struct {
	DownloadDir       string
	RemoteDownloadDir string
	DownloadTimeout   time.Duration
	DefaultTargetURL  string
	DefaultInstruct   string
	DefaultMaxSteps   int
	Stealth           bool
	ViewportWidth     int
	ViewportHeight    int
}

// Runner executes download runs. Every entry point (named remote action,
// its preset variant and the local one-shot mode) funnels through Run, so
// there is exactly one teardown and error boundary.
type Runner struct {
	hub       Hub
	newDriver DriverFactory
	opts      RunnerOptions
	metrics   Metrics
}

func NewRunner(hub Hub, newDriver DriverFactory, opts RunnerOptions, metrics Metrics) *Runner {
	return &Runner{
		hub:       hub,
		newDriver: newDriver,
		opts:      opts,
		metrics:   metrics,
	}
}

// Run executes one download run. Infrastructure failures produce a failed
// Result rather than an error; a timed-out or filename-less capture is a
// soft outcome and still reports success without a file path.
func (r *Runner) Run(ctx context.Context, params Params) Result {
	logger := logctx.LoggerFromContext(ctx)
	started := time.Now()

	params = r.withDefaults(params)

	result, err := r.run(ctx, params)
	if err != nil {
		logger.ErrorContext(ctx, "run failed", "target_url", params.TargetURL, "err", err)

		// The error stays in the log; the reported result carries no
		// message on a hard failure.
		result = Result{Success: false}
	}

	if r.metrics != nil {
		r.metrics.RecordRun(ctx, result.Status(), time.Since(started))
	}

	return result
}

func (r *Runner) run(ctx context.Context, params Params) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	session, err := r.hub.CreateSession(ctx, browserhub.SessionOptions{
		CorrelationID:  params.CorrelationID,
		Stealth:        r.opts.Stealth,
		ViewportWidth:  r.opts.ViewportWidth,
		ViewportHeight: r.opts.ViewportHeight,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to create browser session: %w", err)
	}

	driver := r.newDriver()

	// Teardown runs exactly once regardless of where the run fails. The
	// session is destroyed with a background-derived context so a canceled
	// run still releases the remote browser.
	defer func() {
		teardownCtx, cancel := context.WithTimeout(logctx.WithLogger(context.Background(), logger), 15*time.Second)
		defer cancel()

		if err := driver.Detach(teardownCtx); err != nil {
			logger.WarnContext(teardownCtx, "failed to detach from session", "session_id", session.ID, "err", err)
		}

		if err := r.hub.DestroySession(teardownCtx, session.ID); err != nil {
			logger.ErrorContext(teardownCtx, "failed to destroy session", "session_id", session.ID, "err", err)
		}
	}()

	if err := r.hub.SetDownloadDir(ctx, session.ID, r.opts.RemoteDownloadDir); err != nil {
		return Result{}, fmt.Errorf("failed to configure session download dir: %w", err)
	}

	if err := driver.Attach(ctx, session); err != nil {
		return Result{}, fmt.Errorf("failed to attach to session: %w", err)
	}

	if err := driver.Navigate(ctx, params.TargetURL); err != nil {
		return Result{}, fmt.Errorf("failed to navigate: %w", err)
	}

	agentSummary, err := driver.Act(ctx, params.Instruction, params.MaxSteps)
	if err != nil {
		return Result{}, fmt.Errorf("agent failed: %w", err)
	}

	logger.InfoContext(ctx, "agent finished", "summary", agentSummary)

	filename, err := driver.AwaitDownload(ctx, r.opts.DownloadTimeout)
	if err != nil {
		return r.softOutcome(ctx, agentSummary, err)
	}

	if r.metrics != nil {
		r.metrics.RecordDownloadCaptured(ctx)
	}

	localPath, err := r.retrieve(ctx, session.ID, filename)
	if err != nil {
		return Result{}, fmt.Errorf("failed to retrieve downloaded file: %w", err)
	}

	return Result{
		Success:            true,
		ResultMessage:      fmt.Sprintf("downloaded %s. %s", filename, agentSummary),
		DownloadedFilePath: localPath,
	}, nil
}

// softOutcome maps the capture sentinels to successful-but-empty results.
// Any other await failure is a hard one.
func (r *Runner) softOutcome(ctx context.Context, agentSummary string, err error) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	switch {
	case errors.Is(err, capture.ErrNoDownload):
		logger.WarnContext(ctx, "no download captured within timeout", "timeout", r.opts.DownloadTimeout)

		if r.metrics != nil {
			r.metrics.RecordDownloadTimeout(ctx)
		}

		return Result{
			Success:       true,
			ResultMessage: fmt.Sprintf("no download was captured within %s. %s", r.opts.DownloadTimeout, agentSummary),
		}, nil
	case errors.Is(err, capture.ErrFilenameUndetermined):
		logger.WarnContext(ctx, "download completed but filename could not be determined")

		return Result{
			Success:       true,
			ResultMessage: "a download completed but its filename could not be determined. " + agentSummary,
		}, nil
	}

	return Result{}, fmt.Errorf("failed to await download: %w", err)
}

// retrieve streams the captured file out of the session filesystem into the
// local download directory and returns the local path.
func (r *Runner) retrieve(ctx context.Context, sessionID, filename string) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	// The filename comes from the browser event; keep only its base so a
	// hostile suggested name cannot escape the download directory.
	filename = filepath.Base(filename)
	remotePath := path.Join(r.opts.RemoteDownloadDir, filename)

	reader, err := r.hub.ReadFile(ctx, sessionID, remotePath)
	if err != nil {
		return "", fmt.Errorf("failed to read remote file: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(r.opts.DownloadDir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	localPath := filepath.Join(r.opts.DownloadDir, filename)

	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	progressInterval := int64(10 * 1024 * 1024) // 10MB
	pr := progress.NewReader(reader, 0, progressInterval, func(written, total int64) {
		logger.DebugContext(ctx, "retrieval progress", "file", filename, "retrieved", humanize.Bytes(uint64(written)))
	})

	written, err := io.Copy(out, pr)
	if err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	logger.InfoContext(ctx, "retrieved and saved file",
		"target", localPath,
		"size", humanize.Bytes(uint64(written)),
	)

	return localPath, nil
}

func (r *Runner) withDefaults(params Params) Params {
	if params.TargetURL == "" {
		params.TargetURL = r.opts.DefaultTargetURL
	}

	if params.Instruction == "" {
		params.Instruction = r.opts.DefaultInstruct
	}

	if params.MaxSteps <= 0 {
		params.MaxSteps = r.opts.DefaultMaxSteps
	}

	if params.MaxSteps > maxStepsCeiling {
		params.MaxSteps = maxStepsCeiling
	}

	return params
}
