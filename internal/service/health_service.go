package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthStatus is the overall verdict of a health sweep.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Probe checks one dependency. Implementations must respect the context
// deadline.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// ComponentHealth is one dependency's result within a sweep.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Healthy   bool          `json:"healthy"`
	LatencyMs float64       `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"-"`
}

// HealthReport aggregates a full sweep.
type HealthReport struct {
	Status     HealthStatus      `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Alert is one recorded operational event. The log is a bounded ring: old
// entries fall off once the capacity is reached.
type Alert struct {
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// HealthConfig tunes sweep cadence and thresholds.
type HealthConfig struct {
	Interval          time.Duration
	ProbeTimeout      time.Duration
	DegradedThreshold time.Duration
	AlertLogSize      int
}

// HealthService probes dependencies concurrently and keeps the latest report
// plus a bounded alert log.
type HealthService struct {
	probes []Probe
	logger *zap.Logger
	cfg    HealthConfig

	mu     sync.RWMutex
	last   *HealthReport
	alerts []Alert
}

// NewHealthService constructs the service.
func NewHealthService(probes []Probe, logger *zap.Logger, cfg HealthConfig) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = time.Second
	}
	if cfg.AlertLogSize <= 0 {
		cfg.AlertLogSize = 100
	}
	return &HealthService{probes: probes, logger: logger, cfg: cfg}
}

// Check runs every probe concurrently and computes the overall status:
// unhealthy when any critical dependency fails, degraded when a non-critical
// dependency fails or a probe runs slower than the threshold.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	results := make([]ComponentHealth, len(s.probes))
	var wg sync.WaitGroup
	for i, probe := range s.probes {
		wg.Add(1)
		go func(idx int, p Probe) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Check(probeCtx)
			latency := time.Since(start)

			result := ComponentHealth{
				Name:      p.Name,
				Healthy:   err == nil,
				Latency:   latency,
				LatencyMs: float64(latency.Nanoseconds()) / float64(time.Millisecond),
			}
			if err != nil {
				result.Error = err.Error()
			}
			results[idx] = result
		}(i, probe)
	}
	wg.Wait()

	status := HealthHealthy
	for i, result := range results {
		probe := s.probes[i]
		if !result.Healthy {
			if probe.Critical {
				status = HealthUnhealthy
			} else if status != HealthUnhealthy {
				status = HealthDegraded
			}
			s.Record("warning", probe.Name, "probe failed: "+result.Error)
			continue
		}
		if result.Latency > s.cfg.DegradedThreshold && status == HealthHealthy {
			status = HealthDegraded
			s.Record("info", probe.Name, "probe slow")
		}
	}

	report := &HealthReport{
		Status:     status,
		Components: results,
		CheckedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report
}

// Last returns the most recent report, running a fresh sweep when none exists
// yet.
func (s *HealthService) Last(ctx context.Context) *HealthReport {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		return last
	}
	return s.Check(ctx)
}

// Record appends an alert, evicting the oldest entry once the ring is full.
// Safe for concurrent use; also satisfies the processing pipeline's alert
// sink.
func (s *HealthService) Record(level, component, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		At:        time.Now().UTC(),
	})
	if len(s.alerts) > s.cfg.AlertLogSize {
		s.alerts = s.alerts[len(s.alerts)-s.cfg.AlertLogSize:]
	}
}

// Alerts returns a copy of the alert log, newest last.
func (s *HealthService) Alerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Start boots the periodic sweep goroutine.
func (s *HealthService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := s.Check(ctx)
				if report.Status != HealthHealthy {
					s.logger.Sugar().Warnw("health sweep", "status", report.Status)
				}
			}
		}
	}()
}
