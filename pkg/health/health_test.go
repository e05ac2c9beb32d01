package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, fn http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var b body
	require.NoError(t, json.NewDecoder(w.Body).Decode(&b))
	return w.Code, b
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestLive_Thresholds(t *testing.T) {
	h := New()
	h.Add(Liveness, "db", failing("connection refused"), WithThresholds(2, 2))
	p := h.probes[0]
	ctx := context.Background()

	p.run(ctx)
	code, _ := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "one failure is below threshold")

	p.run(ctx)
	code, b := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", b.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, b.Checks)

	p.check = func(context.Context) error { return nil }
	p.run(ctx)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code, "one success is below threshold")
	p.run(ctx)
	code, b = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)
	assert.Empty(t, b.Checks)
}

func TestReady_ManualFlag(t *testing.T) {
	h := New()
	h.Add(Readiness, "db", func(context.Context) error { return nil })

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, b.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())
}

func TestReady_IgnoresLivenessFailures(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.Add(Liveness, "goroutines", failing("too many"), WithThresholds(1, 1))
	h.probes[0].run(context.Background())

	code, _ := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestTimeout(t *testing.T) {
	h := New()
	h.Add(Readiness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))
	h.SetReady(true)

	h.probes[0].run(context.Background())
	assert.False(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.Add(Liveness, "count", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)
	h.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()

	// Allow an in-flight run to finish.
	time.Sleep(20 * time.Millisecond)
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, PingCheck(pinger{})(ctx))
	assert.ErrorContains(t, PingCheck(pinger{err: errors.New("refused")})(ctx), "refused")

	assert.NoError(t, GoroutineCountCheck(1<<20)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}

func TestStart_HealthyPingerStaysReady(t *testing.T) {
	var pings atomic.Int32
	ping := PingCheck(pinger{})
	h := New()
	h.Add(Readiness, "storage", func(ctx context.Context) error {
		pings.Add(1)
		return ping(ctx)
	}, WithThresholds(1, 1))
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool { return pings.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, h.IsReady())
	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, b.Checks)
}
