// Package browserhub is the client for the hosted-browser platform: session
// lifecycle, remote download directory configuration and the session-scoped
// remote filesystem.
package browserhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/italolelis/fetchpilot/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const requestTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a platform client authenticated with a static bearer
// token. The transport is instrumented so platform calls show up in traces.
func NewClient(baseURL, token string) *Client {
	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(
		context.WithValue(context.Background(), oauth2.HTTPClient, base),
		tokenSource,
	)
	httpClient.Timeout = requestTimeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateSession provisions an isolated browser instance and returns its
// handle, including the debugging-protocol connect URL and a live-view URL.
func (c *Client) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	logger := logctx.LoggerFromContext(ctx)

	var session Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", opts, &session, "create_session"); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "browser session created",
		"session_id", session.ID,
		"live_view_url", session.LiveViewURL,
	)

	return &session, nil
}

// SetDownloadDir points the session's browser at a remote directory for
// downloaded artifacts. Must be called before any download can start.
func (c *Client) SetDownloadDir(ctx context.Context, sessionID, dir string) error {
	payload := map[string]string{"path": dir}

	return c.doJSON(ctx, http.MethodPut, "/v1/sessions/"+sessionID+"/downloads-dir", payload, nil, "set_download_dir")
}

// ReadFile streams a file from the session's remote filesystem by path.
// The caller owns the returned reader.
func (c *Client) ReadFile(ctx context.Context, sessionID, path string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/v1/sessions/%s/fs?path=%s", c.baseURL, sessionID, url.QueryEscape(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Operation: "read_file", APIMessage: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, &RequestError{
			Operation:  "read_file",
			StatusCode: resp.StatusCode,
			APIMessage: readAPIMessage(resp.Body),
		}
	}

	return resp.Body, nil
}

// WriteFile uploads content to the session's remote filesystem by path.
func (c *Client) WriteFile(ctx context.Context, sessionID, path string, r io.Reader) error {
	endpoint := fmt.Sprintf("%s/v1/sessions/%s/fs?path=%s", c.baseURL, sessionID, url.QueryEscape(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Operation: "write_file", APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &RequestError{
			Operation:  "write_file",
			StatusCode: resp.StatusCode,
			APIMessage: readAPIMessage(resp.Body),
		}
	}

	return nil
}

// ListDownloads lists the files currently staged in the session's remote
// download directory.
func (c *Client) ListDownloads(ctx context.Context, sessionID string) ([]RemoteFile, error) {
	var result struct {
		Files []RemoteFile `json:"files"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/downloads", nil, &result, "list_downloads"); err != nil {
		return nil, err
	}

	return result.Files, nil
}

// DestroySession releases the remote browser. A 404 means the session is
// already gone and is not an error, which makes teardown idempotent.
func (c *Client) DestroySession(ctx context.Context, sessionID string) error {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Operation: "destroy_session", APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.DebugContext(ctx, "session already destroyed", "session_id", sessionID)

		return nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &RequestError{
			Operation:  "destroy_session",
			StatusCode: resp.StatusCode,
			APIMessage: readAPIMessage(resp.Body),
		}
	}

	logger.InfoContext(ctx, "browser session destroyed", "session_id", sessionID)

	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any, operation string) error {
	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Operation: operation, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			APIMessage: readAPIMessage(resp.Body),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// readAPIMessage extracts a short error message from a response body,
// preferring the platform's {"error": "..."} envelope.
func readAPIMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}

	return string(raw)
}
