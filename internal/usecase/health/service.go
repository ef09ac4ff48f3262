package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates at least one check failed.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Check names reported by the built-in probes.
const (
	CheckDatabase  = "database"
	CheckEmbedding = "embedding"
)

const defaultCheckTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Service coordinates health checks.
type Service struct {
	checks  []namedCheck
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Service. embedding can be nil, e.g. when the provider has no cheap probe.
func New(db DBPinger, embedding EmbeddingChecker, logger *zap.Logger) *Service {
	s := &Service{timeout: defaultCheckTimeout, logger: logger}
	s.checks = append(s.checks, namedCheck{CheckDatabase, db.Ping})
	if embedding != nil {
		s.checks = append(s.checks, namedCheck{CheckEmbedding, embedding.HealthCheck})
	}
	return s
}

// WithCheck adds a named probe.
func (s *Service) WithCheck(name string, fn CheckFunc) *Service {
	s.checks = append(s.checks, namedCheck{name, fn})
	return s
}

// WithTimeout bounds every probe.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// Check runs every probe. Any failure makes the report Degraded; the cause
// is logged and never returned to callers.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks))
	status := Healthy

	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.fn(cctx)
		cancel()

		if err != nil {
			checks[c.name] = CheckError
			status = Degraded
			s.logger.Warn("Health check failed", zap.String("check", c.name), zap.Error(err))
			continue
		}
		checks[c.name] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
