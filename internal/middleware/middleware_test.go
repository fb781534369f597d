package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2beens/fitplan/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecovery_NonPanic(t *testing.T) {
	m := metrics.NewTestManager()
	next := &testHandler{status: http.StatusAccepted}

	rr := httptest.NewRecorder()
	PanicRecovery(m)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, next.called)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CounterHandleRequestPanic))
}

func TestPanicRecovery_Panic(t *testing.T) {
	m := metrics.NewTestManager()
	next := &testHandler{panic: true}

	rr := httptest.NewRecorder()
	PanicRecovery(m)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/catalog/stats", nil))

	assert.True(t, next.called)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterHandleRequestPanic))
}

func TestPanicRecovery_NilManager(t *testing.T) {
	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		PanicRecovery(nil)(&testHandler{panic: true}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRequestMetrics(t *testing.T) {
	m := metrics.NewTestManager()
	handler := RequestMetrics(m)

	handler(&testHandler{status: http.StatusNotFound}).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/catalog/templates/x", nil))
	handler(&testHandler{}).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/catalog/reload", nil))
	handler(&testHandler{}).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/catalog/reload", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterRequests.WithLabelValues(http.MethodGet, "404")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CounterRequests.WithLabelValues(http.MethodPost, "200")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HistogramRequestDuration))
}

func TestDrainAndCloseRequest(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(`{"unread": true}`)}
	req := httptest.NewRequest(http.MethodPost, "/catalog/reload", nil)
	req.Body = body

	next := &testHandler{}
	DrainAndCloseRequest()(next).ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, next.called)
	assert.True(t, body.closed)
	rest, _ := io.ReadAll(body.Reader)
	assert.Empty(t, rest)
}

func TestLogRequest(t *testing.T) {
	next := &testHandler{}
	LogRequest()(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/injuries", nil))
	assert.True(t, next.called)
}

type testHandler struct {
	panic  bool
	status int
	called bool
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.called = true
	if h.panic {
		panic("handler exploded")
	}
	if h.status != 0 {
		w.WriteHeader(h.status)
	}
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type fakeLimiter struct {
	allowed int
	calls   int
	err     error
}

func (l *fakeLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if l.calls > l.allowed {
		return &redis_rate.Result{Limit: limit, Allowed: 0, RetryAfter: 1500 * time.Millisecond}, nil
	}
	return &redis_rate.Result{Limit: limit, Allowed: 1, Remaining: l.allowed - l.calls}, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: 2}
	next := &testHandler{}
	handler := RateLimit(limiter, "catalog-reload", 2)(next)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/catalog/reload", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/catalog/reload", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	limiter.err = errors.New("redis down")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/catalog/reload", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
