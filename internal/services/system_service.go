package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// Pools, when set, adds a "seats" check reporting the remaining exam capacity.
	Pools            repositories.PoolRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	pools      repositories.PoolRepository
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system service providing health reports and build metadata.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		pools:      deps.Pools,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	report.GeneratedAt = ensureTimestamp(report.GeneratedAt, now)
	report.Version = chooseFirstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = chooseFirstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = chooseFirstNonEmpty(report.Environment, s.build.Environment)

	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt)
	}

	if len(report.Checks) == 0 {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	if strings.TrimSpace(report.Status) == "" {
		report.Status = deriveStatus(report.Checks)
	}

	if s.pools != nil {
		seats := s.seatCheck(ctx)
		report.Checks["seats"] = seats
		report.Status = worseStatus(report.Status, seats.Status)
	}

	return report, nil
}

// seatCheck degrades readiness once no center or no shift can take another candidate.
// Registrations keep failing with a capacity error until the pools are reseeded.
func (s *systemService) seatCheck(ctx context.Context) domain.SystemHealthCheck {
	start := s.clock()
	centers, shifts, err := s.pools.Snapshot(ctx)
	end := s.clock()
	check := domain.SystemHealthCheck{Latency: end.Sub(start), CheckedAt: end}
	if err != nil {
		check.Status, check.Detail, check.Error = domain.HealthStatusError, "unavailable", err.Error()
		return check
	}

	centerSeats, shiftSeats := 0, 0
	for _, c := range centers {
		if c.HasCapacity() {
			centerSeats += c.Capacity - c.CurrentBookings
		}
	}
	for _, sh := range shifts {
		if sh.HasCapacity() {
			shiftSeats += sh.Capacity - sh.CurrentBookings
		}
	}
	switch {
	case len(centers) == 0 || len(shifts) == 0:
		check.Status, check.Detail = domain.HealthStatusDegraded, "pools not seeded"
	case centerSeats == 0 || shiftSeats == 0:
		check.Status, check.Detail = domain.HealthStatusDegraded, "exhausted"
	default:
		check.Status = domain.HealthStatusOK
		check.Detail = fmt.Sprintf("%d center seats, %d shift seats left", centerSeats, shiftSeats)
	}
	return check
}

func ensureTimestamp(ts time.Time, fallback time.Time) time.Time {
	if ts.IsZero() {
		return fallback
	}
	return ts.UTC()
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func statusRank(status string) int {
	switch status {
	case domain.HealthStatusError:
		return 2
	case domain.HealthStatusOK, "":
		return 0
	default:
		return 1
	}
}

func worseStatus(a, b string) string {
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	if len(checks) == 0 {
		return domain.HealthStatusOK
	}
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
