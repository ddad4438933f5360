package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func healthyProbe(name string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return nil }}
}

func failingProbe(name string, critical bool) Probe {
	return Probe{Name: name, Critical: critical, Check: func(context.Context) error {
		return errors.New(name + " unreachable")
	}}
}

func TestHealthCheckAllHealthy(t *testing.T) {
	svc := NewHealthService([]Probe{healthyProbe("database"), healthyProbe("redis")}, zap.NewNop(), HealthConfig{})

	report := svc.Check(context.Background())
	assert.Equal(t, HealthHealthy, report.Status)
	require.Len(t, report.Components, 2)
	for _, component := range report.Components {
		assert.True(t, component.Healthy)
	}
}

func TestHealthCheckCriticalFailureIsUnhealthy(t *testing.T) {
	svc := NewHealthService([]Probe{
		healthyProbe("redis"),
		failingProbe("database", true),
	}, zap.NewNop(), HealthConfig{})

	report := svc.Check(context.Background())
	assert.Equal(t, HealthUnhealthy, report.Status)
}

func TestHealthCheckNonCriticalFailureIsDegraded(t *testing.T) {
	svc := NewHealthService([]Probe{
		healthyProbe("database"),
		failingProbe("mailer", false),
	}, zap.NewNop(), HealthConfig{})

	report := svc.Check(context.Background())
	assert.Equal(t, HealthDegraded, report.Status)

	alerts := svc.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "mailer", alerts[0].Component)
	assert.Equal(t, "warning", alerts[0].Level)
}

func TestHealthCheckSlowProbeIsDegraded(t *testing.T) {
	slow := Probe{Name: "storage", Check: func(ctx context.Context) error {
		select {
		case <-time.After(20 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	svc := NewHealthService([]Probe{slow}, zap.NewNop(), HealthConfig{DegradedThreshold: time.Millisecond})

	report := svc.Check(context.Background())
	assert.Equal(t, HealthDegraded, report.Status)
}

func TestHealthCheckProbeTimeout(t *testing.T) {
	stuck := Probe{Name: "docling", Critical: true, Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	svc := NewHealthService([]Probe{stuck}, zap.NewNop(), HealthConfig{ProbeTimeout: 10 * time.Millisecond})

	done := make(chan *HealthReport, 1)
	go func() { done <- svc.Check(context.Background()) }()
	select {
	case report := <-done:
		assert.Equal(t, HealthUnhealthy, report.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("health check did not honour probe timeout")
	}
}

func TestHealthProbesRunConcurrently(t *testing.T) {
	const probeDelay = 30 * time.Millisecond
	probes := make([]Probe, 5)
	for i := range probes {
		probes[i] = Probe{Name: fmt.Sprintf("dep-%d", i), Check: func(context.Context) error {
			time.Sleep(probeDelay)
			return nil
		}}
	}
	svc := NewHealthService(probes, zap.NewNop(), HealthConfig{DegradedThreshold: time.Second})

	start := time.Now()
	svc.Check(context.Background())
	elapsed := time.Since(start)

	// Serial execution would take 5x the probe delay.
	assert.Less(t, elapsed, 3*probeDelay)
}

func TestHealthLastReturnsCachedReport(t *testing.T) {
	calls := 0
	probe := Probe{Name: "database", Check: func(context.Context) error {
		calls++
		return nil
	}}
	svc := NewHealthService([]Probe{probe}, zap.NewNop(), HealthConfig{})

	first := svc.Last(context.Background())
	second := svc.Last(context.Background())
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestAlertLogIsBounded(t *testing.T) {
	svc := NewHealthService(nil, zap.NewNop(), HealthConfig{AlertLogSize: 10})

	for i := 0; i < 25; i++ {
		svc.Record("info", "test", fmt.Sprintf("event %d", i))
	}

	alerts := svc.Alerts()
	require.Len(t, alerts, 10)
	assert.Equal(t, "event 15", alerts[0].Message)
	assert.Equal(t, "event 24", alerts[9].Message)
}
