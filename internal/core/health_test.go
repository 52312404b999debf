package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProbe struct {
	name string
	err  error
	hang bool
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Check(ctx context.Context) error {
	if p.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

func doHealth(t *testing.T, s *Server) (int, healthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := doHealth(t, newTestServer(t))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{&stubProbe{name: "database"}}

	code, resp := doHealth(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
}

func TestHandleHealth_ProbeFailure(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database", err: errors.New("connection refused")},
	}

	code, resp := doHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Components["database"].Message)
}

func TestHandleHealth_HangingProbeReportedUnhealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database"},
		&stubProbe{name: "slow", hang: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	s.HandleHealth(w, r)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "unhealthy", resp.Components["slow"].Status)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestNewPingProbe(t *testing.T) {
	probe := NewPingProbe("database", stubPinger{})
	assert.Equal(t, "database", probe.Name())
	assert.NoError(t, probe.Check(context.Background()))

	failing := NewPingProbe("database", stubPinger{err: errors.New("down")})
	assert.Error(t, failing.Check(context.Background()))
}
