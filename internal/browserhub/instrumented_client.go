package browserhub

import (
	"context"
	"io"

	"github.com/italolelis/fetchpilot/internal/telemetry"
)

// InstrumentedClient wraps a Client with telemetry instrumentation so every
// platform call shows up as a traced, metered hub operation.
type InstrumentedClient struct {
	client *Client
	tel    *telemetry.Telemetry
}

func NewInstrumentedClient(client *Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{client: client, tel: tel}
}

func (c *InstrumentedClient) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	var session *Session

	err := c.tel.InstrumentHubOperation(ctx, "create_session", func(ctx context.Context) error {
		var err error
		session, err = c.client.CreateSession(ctx, opts)

		return err
	})

	return session, err
}

func (c *InstrumentedClient) SetDownloadDir(ctx context.Context, sessionID, dir string) error {
	return c.tel.InstrumentHubOperation(ctx, "set_download_dir", func(ctx context.Context) error {
		return c.client.SetDownloadDir(ctx, sessionID, dir)
	})
}

// ReadFile instruments the request only; the returned stream is consumed by
// the caller after the span has ended.
func (c *InstrumentedClient) ReadFile(ctx context.Context, sessionID, path string) (io.ReadCloser, error) {
	var reader io.ReadCloser

	err := c.tel.InstrumentHubOperation(ctx, "read_file", func(ctx context.Context) error {
		var err error
		reader, err = c.client.ReadFile(ctx, sessionID, path)

		return err
	})

	return reader, err
}

func (c *InstrumentedClient) WriteFile(ctx context.Context, sessionID, path string, r io.Reader) error {
	return c.tel.InstrumentHubOperation(ctx, "write_file", func(ctx context.Context) error {
		return c.client.WriteFile(ctx, sessionID, path, r)
	})
}

func (c *InstrumentedClient) ListDownloads(ctx context.Context, sessionID string) ([]RemoteFile, error) {
	var files []RemoteFile

	err := c.tel.InstrumentHubOperation(ctx, "list_downloads", func(ctx context.Context) error {
		var err error
		files, err = c.client.ListDownloads(ctx, sessionID)

		return err
	})

	return files, err
}

func (c *InstrumentedClient) DestroySession(ctx context.Context, sessionID string) error {
	return c.tel.InstrumentHubOperation(ctx, "destroy_session", func(ctx context.Context) error {
		return c.client.DestroySession(ctx, sessionID)
	})
}
