// Package allocation assigns candidates to the least-loaded exam center and
// shift. Centers and shifts are chosen independently; a shift is not bound to
// a center.
package allocation

import (
	"errors"
	"sync"

	"github.com/bobbygour30/admitcard/internal/domain"
)

var (
	// ErrNoAvailableCenters is returned when every center is at capacity.
	ErrNoAvailableCenters = errors.New("allocation: no available centers")
	// ErrNoAvailableShifts is returned when every shift is at capacity.
	ErrNoAvailableShifts = errors.New("allocation: no available shifts")
)

// IsExhausted reports whether err is one of the capacity exhaustion errors.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrNoAvailableCenters) || errors.Is(err, ErrNoAvailableShifts)
}

// Choice holds the indexes of the selected center and shift.
type Choice struct {
	CenterIndex int
	ShiftIndex  int
}

// Select picks the least-loaded center and the least-loaded shift. Ties go to
// the earliest entry. Centers are checked first, so a centers-exhausted call
// never looks at shifts. Nothing is mutated.
func Select(centers []domain.Center, shifts []domain.Shift) (Choice, error) {
	center := -1
	for i, c := range centers {
		if !c.HasCapacity() {
			continue
		}
		if center < 0 || c.CurrentBookings < centers[center].CurrentBookings {
			center = i
		}
	}
	if center < 0 {
		return Choice{}, ErrNoAvailableCenters
	}

	shift := -1
	for i, s := range shifts {
		if !s.HasCapacity() {
			continue
		}
		if shift < 0 || s.CurrentBookings < shifts[shift].CurrentBookings {
			shift = i
		}
	}
	if shift < 0 {
		return Choice{}, ErrNoAvailableShifts
	}
	return Choice{CenterIndex: center, ShiftIndex: shift}, nil
}

// Apply returns copies of the pools with the chosen center and shift booked
// once more. The input slices are left untouched.
func Apply(centers []domain.Center, shifts []domain.Shift, choice Choice) ([]domain.Center, []domain.Shift) {
	nextCenters := make([]domain.Center, len(centers))
	copy(nextCenters, centers)
	nextShifts := make([]domain.Shift, len(shifts))
	copy(nextShifts, shifts)

	nextCenters[choice.CenterIndex].CurrentBookings++
	nextShifts[choice.ShiftIndex].CurrentBookings++
	return nextCenters, nextShifts
}

// Allocate selects and applies in one step, returning the booked assignment
// alongside the updated pools.
func Allocate(centers []domain.Center, shifts []domain.Shift) (domain.Assignment, []domain.Center, []domain.Shift, error) {
	choice, err := Select(centers, shifts)
	if err != nil {
		return domain.Assignment{}, centers, shifts, err
	}
	nextCenters, nextShifts := Apply(centers, shifts, choice)
	return domain.Assignment{
		Center: nextCenters[choice.CenterIndex],
		Shift:  nextShifts[choice.ShiftIndex],
	}, nextCenters, nextShifts, nil
}

// Pool is a mutex-guarded in-memory center and shift pool.
type Pool struct {
	mu      sync.Mutex
	centers []domain.Center
	shifts  []domain.Shift
}

// NewPool copies the seed lists into a new pool.
func NewPool(centers []domain.Center, shifts []domain.Shift) *Pool {
	p := &Pool{}
	p.centers = append([]domain.Center(nil), centers...)
	p.shifts = append([]domain.Shift(nil), shifts...)
	return p
}

// Allocate books one seat. On error the pool is unchanged.
func (p *Pool) Allocate() (domain.Assignment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	assignment, centers, shifts, err := Allocate(p.centers, p.shifts)
	if err != nil {
		return domain.Assignment{}, err
	}
	p.centers, p.shifts = centers, shifts
	return assignment, nil
}

// Snapshot returns copies of the current pools.
func (p *Pool) Snapshot() ([]domain.Center, []domain.Shift) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Center(nil), p.centers...), append([]domain.Shift(nil), p.shifts...)
}
