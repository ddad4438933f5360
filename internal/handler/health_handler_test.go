package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/internal/service"
)

func newHealthHandlerForTest(probes []service.Probe) *HealthHandler {
	svc := service.NewHealthService(probes, zap.NewNop(), service.HealthConfig{
		ProbeTimeout:      time.Second,
		DegradedThreshold: time.Second,
		AlertLogSize:      10,
	})
	return NewHealthHandler(svc)
}

func okProbe(name string, critical bool) service.Probe {
	return service.Probe{
		Name:     name,
		Critical: critical,
		Check:    func(context.Context) error { return nil },
	}
}

func TestHealthHandlerLive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newHealthHandlerForTest(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handler.Live(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ok", envelope.Data["status"])
}

func TestHealthHandlerReadyHealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newHealthHandlerForTest([]service.Probe{okProbe("database", true)})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/readyz", nil)

	handler.Ready(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "healthy", envelope.Data["status"])
	// The public bit carries no per-dependency detail.
	assert.NotContains(t, envelope.Data, "components")
}

func TestHealthHandlerReadyUnhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newHealthHandlerForTest([]service.Probe{
		okProbe("database", true),
		{
			Name:     "docling",
			Critical: true,
			Check:    func(context.Context) error { return errors.New("script missing") },
		},
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/readyz", nil)

	handler.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	// Probe error strings stay off the public surface.
	assert.NotContains(t, rec.Body.String(), "script missing")
}

func TestHealthHandlerReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newHealthHandlerForTest([]service.Probe{
		okProbe("database", true),
		{
			Name:     "redis",
			Critical: false,
			Check:    func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/health", nil)

	handler.Report(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "degraded", envelope.Data["status"])
	components, ok := envelope.Data["components"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, components, 2)
}

func TestHealthHandlerAlerts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewHealthService(nil, zap.NewNop(), service.HealthConfig{AlertLogSize: 10})
	svc.Record("warning", "mailer", "smtp connect failed")
	svc.Record("error", "processing", "conversion failed terminally")
	handler := NewHealthHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/alerts", nil)

	handler.Alerts(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
	assert.Equal(t, "mailer", envelope.Data[0]["component"])
}
