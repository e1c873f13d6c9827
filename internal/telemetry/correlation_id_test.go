package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/fetchpilot/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID_GeneratesAndEchoes(t *testing.T) {
	var got string

	handler := CorrelationID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = logctx.CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(CorrelationIDHeader))
}

func TestCorrelationID_ReusesUpstreamHeader(t *testing.T) {
	var got string

	handler := CorrelationID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = logctx.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "corr-upstream")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "corr-upstream", got)
	assert.Equal(t, "corr-upstream", rec.Header().Get(CorrelationIDHeader))
}
