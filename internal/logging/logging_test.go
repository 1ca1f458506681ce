package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ retryablehttp.LeveledLogger = Leveled{}

func TestNew_LevelAndConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestNew_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "jobplot.log")
	logger, err := New(Options{Level: "debug", File: path, Console: &buf})
	require.NoError(t, err)
	logger.Debug().Msg("to both")
	assert.FileExists(t, path)
}

func TestLeveled_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := Leveled{Logger: zerolog.New(&buf)}
	l.Warn("retrying", "url", "http://x", "attempt", 2, "dangling")
	assert.Contains(t, buf.String(), `"url":"http://x"`)
	assert.Contains(t, buf.String(), `"attempt":2`)
	assert.Contains(t, buf.String(), `"message":"retrying"`)
}

func TestMiddleware_StatusAndCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	h := Middleware(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusNotFound)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/x", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-Id"))
	assert.Contains(t, buf.String(), `"status":404`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"path":"/metrics/x"`)
}
