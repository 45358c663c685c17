package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_Live(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry())

	code, _ := get(t, s.Handler(), "/live")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_Ready(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry())
	healthy := true
	s.AddReadinessCheck("plugins", func() error {
		if !healthy {
			return errors.New("no plugin started")
		}
		return nil
	})

	code, _ := get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, code)

	healthy = false
	code, body := get(t, s.Handler(), "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "no plugin started")
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "vista_test_total", Help: "Test counter."})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer("127.0.0.1:0", reg)
	s.AddReadinessCheck("always", func() error { return nil })
	get(t, s.Handler(), "/ready")

	code, body := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "vista_test_total 1")
	assert.Contains(t, body, `vista_healthcheck_status{check="always"}`)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_StartAddressInUse(t *testing.T) {
	first := NewServer("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	second := NewServer(first.Addr(), prometheus.NewRegistry())
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	check := RedisCheck(rdb)
	assert.NoError(t, check())

	mr.Close()
	assert.ErrorContains(t, check(), "redis ping failed")
}
