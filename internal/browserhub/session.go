package browserhub

import "time"

// SessionStatus represents the current state of a remote browser session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "RUNNING"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusError     SessionStatus = "ERROR"
	StatusTimedOut  SessionStatus = "TIMED_OUT"
)

// Session is an opaque handle to a hosted browser instance. It is created at
// task start and destroyed (best-effort) at task end regardless of outcome.
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	ConnectURL  string        `json:"connectUrl"`
	LiveViewURL string        `json:"liveViewUrl"`
	CreatedAt   time.Time     `json:"createdAt"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}

// SessionOptions is the payload for creating a new session.
type SessionOptions struct {
	CorrelationID  string `json:"correlationId,omitempty"`
	Stealth        bool   `json:"stealth,omitempty"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
}

// RemoteFile describes a file staged on the session's remote filesystem.
type RemoteFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}
