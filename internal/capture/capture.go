// Package capture observes the browser debugging protocol's download
// lifecycle events and turns them into a single completion signal that can
// be raced against a deadline.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

var (
	// ErrNoDownload is returned when the wait window elapses without a
	// terminal download event. Callers treat this as a soft failure: the
	// instruction may have succeeded without producing a detectable
	// download (e.g. a PDF opened in a viewer).
	ErrNoDownload = errors.New("no download observed within the wait window")

	// ErrFilenameUndetermined is returned when completion fired but no
	// downloadWillBegin event supplied a filename, so retrieval has no path
	// to read.
	ErrFilenameUndetermined = errors.New("download completed but filename is undeterminable")
)

// Recorder accumulates download event state for one session and resolves a
// completion signal exactly once. It must be subscribed on the debugging
// connection before navigation or any agent action, otherwise an early
// download can slip past it.
//
// Both handlers are invoked sequentially on the event dispatch goroutine and
// the state is read only after the completion signal settles, so the
// resolve-once discipline (sync.Once over a closed channel) is the only
// synchronization needed.
type Recorder struct {
	filename string
	guid     string
	state    proto.BrowserDownloadProgressState

	resolve sync.Once
	done    chan struct{}
}

// NewRecorder creates an unarmed Recorder.
func NewRecorder() *Recorder {
	return &Recorder{done: make(chan struct{})}
}

// HandleWillBegin captures the suggested filename of the first download that
// starts. It never resolves the completion signal.
func (r *Recorder) HandleWillBegin(e *proto.BrowserDownloadWillBegin) {
	if r.filename != "" {
		return // first download wins
	}

	r.filename = e.SuggestedFilename
	r.guid = e.GUID
}

// HandleProgress resolves the completion signal when a download reaches a
// terminal state (completed or canceled). Repeated terminal events are
// ignored. The boolean return tells the event loop to stop subscribing once
// a terminal state was seen.
func (r *Recorder) HandleProgress(e *proto.BrowserDownloadProgress) bool {
	if e.State != proto.BrowserDownloadProgressStateCompleted &&
		e.State != proto.BrowserDownloadProgressStateCanceled {
		return false
	}

	r.state = e.State
	r.resolve.Do(func() { close(r.done) })

	return true
}

// Done exposes the completion signal. It is closed at most once.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Await races the completion signal against the given timeout (and the
// context). On completion it returns the captured filename, or
// ErrFilenameUndetermined when no downloadWillBegin event was ever observed.
// On timeout it returns ErrNoDownload. There are no retries; the wait is
// attempted exactly once by the caller.
func (r *Recorder) Await(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		if r.filename == "" {
			return "", ErrFilenameUndetermined
		}

		return r.filename, nil
	case <-timer.C:
		return "", ErrNoDownload
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
