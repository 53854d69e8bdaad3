package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/metrics"
	"sneakpeak/pkg/pipeline"
)

type stubRunner struct {
	calls  int32
	result *domain.RunResult
	err    error
}

func (r *stubRunner) RunDetectionCycle(context.Context) (*domain.RunResult, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.result, r.err
}

func newTestServer(secret string, runner Runner) http.Handler {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg).SkippedRun()
	return NewServer(Config{CronSecret: secret, Gatherer: reg, Debug: true}, runner, logger.NewNop()).Handler()
}

func trigger(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestScrape_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{"missing header", "s3cret", ""},
		{"wrong secret", "s3cret", "Bearer nope"},
		{"wrong scheme", "s3cret", "Basic s3cret"},
		{"no space", "s3cret", "Bearers3cret"},
		{"secret unset", "", "Bearer "},
		{"secret unset with token", "", "Bearer anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{result: &domain.RunResult{}}
			w := trigger(newTestServer(tt.secret, runner), tt.header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Zero(t, atomic.LoadInt32(&runner.calls), "no pipeline work before auth")
		})
	}
}

func TestScrape_Success(t *testing.T) {
	runner := &stubRunner{result: &domain.RunResult{Targets: 3, Succeeded: 2, Failed: 1, Changes: 1}}
	w := trigger(newTestServer("s3cret", runner), "Bearer s3cret")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool             `json:"success"`
		Result  domain.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Result.Targets)
	assert.Equal(t, 1, body.Result.Failed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestScrape_EnumerationFailure(t *testing.T) {
	runner := &stubRunner{err: fmt.Errorf("%w: %w", pipeline.ErrEnumerate, errors.New("connection refused"))}
	w := trigger(newTestServer("s3cret", runner), "Bearer s3cret")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestScrape_RunInProgress(t *testing.T) {
	runner := &stubRunner{err: pipeline.ErrRunInProgress}
	w := trigger(newTestServer("s3cret", runner), "Bearer s3cret")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestScrape_MethodNotPost(t *testing.T) {
	runner := &stubRunner{}
	h := newTestServer("s3cret", runner)

	req := httptest.NewRequest(http.MethodGet, "/api/scrape", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
	assert.Zero(t, atomic.LoadInt32(&runner.calls))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer("s3cret", &stubRunner{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `sneakpeak_runs_total{outcome="skipped"} 1`))
}
