package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/logger"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(NewLoggingMiddleware(l).Wrap)
	r.Use(Recovery)
	r.Get("/api/v1/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		lg := logger.FromContext(r.Context())
		lg.Info().Msg("inside handler")
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	requestID := rec.Header().Get(chimiddleware.RequestIDHeader)
	assert.NotEmpty(t, requestID)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var inside, completed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &inside))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &completed))
	assert.Equal(t, requestID, inside["request_id"])
	assert.Equal(t, "warn", completed["level"])
	assert.Equal(t, "/api/v1/accounts/{id}", completed["route"])
	assert.Equal(t, float64(http.StatusNotFound), completed["status"])

	buf.Reset()
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"internal"`)
	assert.Contains(t, buf.String(), "panic recovered")
}
