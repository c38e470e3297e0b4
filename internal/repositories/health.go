package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// DependencyCheck is one readiness probe. A failing Optional dependency
// degrades the report instead of failing it.
type DependencyCheck struct {
	Name     string
	Timeout  time.Duration
	Optional bool
	Check    func(context.Context) error
}

// DependencyHealthRepository runs every check concurrently.
type DependencyHealthRepository struct {
	checks []DependencyCheck
	now    func() time.Time
}

// NewDependencyHealthRepository validates checks. clock may be nil.
func NewDependencyHealthRepository(checks []DependencyCheck, clock func() time.Time) (*DependencyHealthRepository, error) {
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" || check.Check == nil {
			return nil, errors.New("health repository: every check needs a name and a function")
		}
	}
	if clock == nil {
		clock = time.Now
	}
	return &DependencyHealthRepository{checks: append([]DependencyCheck(nil), checks...), now: clock}, nil
}

// Collect implements HealthRepository.
func (r *DependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	results := make(map[string]domain.SystemHealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range r.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			result := r.run(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, check := range r.checks {
		switch results[check.Name].Status {
		case domain.HealthStatusError:
			if !check.Optional {
				status = domain.HealthStatusError
			} else if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		case domain.HealthStatusDegraded:
			if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		}
	}
	return domain.SystemHealthReport{Status: status, Checks: results, GeneratedAt: r.now()}, nil
}

func (r *DependencyHealthRepository) run(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultDependencyTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	end := r.now()

	result := domain.SystemHealthCheck{Status: domain.HealthStatusOK, Detail: "ok", Latency: end.Sub(start), CheckedAt: end}
	if err == nil && checkCtx.Err() != nil {
		err = checkCtx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status, result.Detail, result.Error = domain.HealthStatusError, "timeout", err.Error()
	default:
		result.Status, result.Detail, result.Error = domain.HealthStatusError, "unavailable", err.Error()
	}
	return result
}
