package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_SendsContent(t *testing.T) {
	var got map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := &DiscordNotifier{WebhookURL: server.URL}

	require.NoError(t, n.Notify(context.Background(), "✅ Download run succeeded"))
	assert.Equal(t, "✅ Download run succeeded", got["content"])
}

func TestDiscordNotifier_FailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	n := &DiscordNotifier{WebhookURL: server.URL}

	err := n.Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordNotifier_MissingURL(t *testing.T) {
	n := &DiscordNotifier{}

	require.Error(t, n.Notify(context.Background(), "hello"))
}
