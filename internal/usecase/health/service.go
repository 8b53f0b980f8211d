package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as Report.Checks keys.
const (
	ComponentRedis     = "redis"
	ComponentPostgres  = "postgres"
	ComponentEmbedding = "embedding"
	ComponentLLM       = "llm"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type check struct {
	name string
	fn   func(ctx context.Context) error
}

// Service coordinates health checks.
type Service struct {
	checks  []check
	timeout time.Duration
}

// New creates a Service. redis is required; optional components are added with WithX.
func New(redis Pinger) *Service {
	return &Service{
		checks:  []check{{name: ComponentRedis, fn: redis.Ping}},
		timeout: DefaultCheckTimeout,
	}
}

// WithPostgres adds the structured store check.
func (s *Service) WithPostgres(p Pinger) *Service {
	if p != nil {
		s.checks = append(s.checks, check{name: ComponentPostgres, fn: p.Ping})
	}
	return s
}

// WithEmbedding adds the embedding provider check.
func (s *Service) WithEmbedding(c ProviderChecker) *Service {
	if c != nil {
		s.checks = append(s.checks, check{name: ComponentEmbedding, fn: c.HealthCheck})
	}
	return s
}

// WithLLM adds the chat model provider check.
func (s *Service) WithLLM(c ProviderChecker) *Service {
	if c != nil {
		s.checks = append(s.checks, check{name: ComponentLLM, fn: c.HealthCheck})
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks))
	failed := 0

	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.fn(cctx)
		cancel()
		if err != nil {
			checks[c.name] = CheckError
			failed++
			continue
		}
		checks[c.name] = CheckOK
	}

	status := Healthy
	switch {
	case failed == len(s.checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
