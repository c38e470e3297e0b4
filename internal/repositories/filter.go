package repositories

import (
	"sort"
	"strings"

	"github.com/bobbygour30/admitcard/internal/domain"
)

// MatchesSearch reports whether reg matches the admin search term on its
// application number, name or email. An empty term matches everything.
func MatchesSearch(reg domain.Registration, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range []string{reg.ApplicationNumber, reg.PersonalInfo.Name, reg.PersonalInfo.Email} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// ApplyFilter sorts regs newest first, drops non-matching entries and trims to
// the filter limit. regs is modified in place.
func ApplyFilter(regs []domain.Registration, filter domain.RegistrationFilter) []domain.Registration {
	out := regs[:0]
	for _, reg := range regs {
		if MatchesSearch(reg, filter.Search) {
			out = append(out, reg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ApplicationNumber < out[j].ApplicationNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
