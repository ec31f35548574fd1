package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztkent/lightmeter/internal/config"
	lm "github.com/ztkent/lightmeter/internal/lightmeter"
)

func newTestRouter(t *testing.T, localOnly bool) *chi.Mux {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	r := chi.NewRouter()
	r.Use(handleServerPanic)
	defineRoutes(r, lm.New(nil, nil, l), localOnly)
	return r
}

func TestServiceID(t *testing.T) {
	r := newTestRouter(t, false)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/id", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Light Meter", resp["service_name"])
}

func TestRoutes_NoSensor(t *testing.T) {
	r := newTestRouter(t, false)
	for _, path := range []string{"/api/v1/start", "/api/v1/stop", "/api/v1/measure"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status lm.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.Connected)
}

func TestRoutes_LocalOnly(t *testing.T) {
	r := newTestRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/lightmeter/controls", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.RemoteAddr = "192.168.1.20:40000"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the API is not restricted
	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectSensor_Simulated(t *testing.T) {
	sensor, err := connectSensor(config.SensorConfig{
		Transport:    config.TransportSimulated,
		SimulatedLux: 400,
	})
	require.NoError(t, err)
	defer sensor.Close()

	m, err := sensor.ReadAbsoluteRetry()
	require.NoError(t, err)
	assert.InDelta(t, 400, m.Lux(), 1)
}
