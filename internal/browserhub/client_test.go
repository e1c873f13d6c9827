package browserhub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	var gotAuth string
	var gotOpts SessionOptions

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions", r.URL.Path)

		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotOpts))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Session{
			ID:          "sess-1",
			Status:      StatusRunning,
			ConnectURL:  "ws://hub/devtools/browser/abc",
			LiveViewURL: "https://hub/live/sess-1",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	session, err := client.CreateSession(context.Background(), SessionOptions{
		CorrelationID: "corr-1",
		Stealth:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "corr-1", gotOpts.CorrelationID)
	assert.True(t, gotOpts.Stealth)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, "ws://hub/devtools/browser/abc", session.ConnectURL)
}

func TestCreateSession_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"concurrency limit reached"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	_, err := client.CreateSession(context.Background(), SessionOptions{})
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusTooManyRequests, reqErr.StatusCode)
	assert.Equal(t, "create_session", reqErr.Operation)
	assert.Equal(t, "concurrency limit reached", reqErr.APIMessage)
}

func TestSetDownloadDir(t *testing.T) {
	var gotPath, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path

		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	err := client.SetDownloadDir(context.Background(), "sess-1", "/downloads")
	require.NoError(t, err)

	assert.Equal(t, "/v1/sessions/sess-1/downloads-dir", gotPath)
	assert.JSONEq(t, `{"path":"/downloads"}`, gotBody)
}

func TestReadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/sess-1/fs", r.URL.Path)
		require.Equal(t, "/downloads/plan.pdf", r.URL.Query().Get("path"))

		w.Write([]byte("pdf-bytes"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	body, err := client.ReadFile(context.Background(), "sess-1", "/downloads/plan.pdf")
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(raw))
}

func TestReadFile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	_, err := client.ReadFile(context.Background(), "sess-1", "/downloads/missing.pdf")
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
}

func TestWriteFile(t *testing.T) {
	var gotPath, gotQuery, gotType, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("path")
		gotType = r.Header.Get("Content-Type")

		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	err := client.WriteFile(context.Background(), "sess-1", "/uploads/seed.csv", strings.NewReader("a,b"))
	require.NoError(t, err)

	assert.Equal(t, "/v1/sessions/sess-1/fs", gotPath)
	assert.Equal(t, "/uploads/seed.csv", gotQuery)
	assert.Equal(t, "application/octet-stream", gotType)
	assert.Equal(t, "a,b", gotBody)
}

func TestWriteFile_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"read-only filesystem"}`, http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	err := client.WriteFile(context.Background(), "sess-1", "/uploads/seed.csv", strings.NewReader("a,b"))
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusForbidden, reqErr.StatusCode)
	assert.Equal(t, "write_file", reqErr.Operation)
}

func TestListDownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/sess-1/downloads", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files":[{"path":"/downloads/plan.pdf","size":1024}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	files, err := client.ListDownloads(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/downloads/plan.pdf", files[0].Path)
	assert.Equal(t, int64(1024), files[0].Size)
}

func TestDestroySession_Idempotent(t *testing.T) {
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		calls++

		if calls == 1 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Second delete: the session is already gone.
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	require.NoError(t, client.DestroySession(context.Background(), "sess-1"))
	require.NoError(t, client.DestroySession(context.Background(), "sess-1"))
	assert.Equal(t, 2, calls)
}

func TestDestroySession_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")

	err := client.DestroySession(context.Background(), "sess-1")
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)
}
