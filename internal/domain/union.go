package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Union is a cooperative-society affiliation. The canonical form is the bare
// name without the " Union" suffix, e.g. "Harit".
type Union string

const (
	UnionHarit  Union = "Harit"
	UnionTirhut Union = "Tirhut"

	unionSuffix = " union"
)

// NormalizeUnion maps any observed spelling ("Harit", "harit union",
// " Harit  Union ") onto the canonical form.
func NormalizeUnion(raw string) Union {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return ""
	}
	if len(name) > len(unionSuffix) {
		tail := name[len(name)-len(unionSuffix):]
		if cases.Fold().String(tail) == unionSuffix {
			name = strings.TrimSpace(name[:len(name)-len(unionSuffix)])
		}
	}
	return Union(cases.Title(language.Und).String(name))
}

// String returns the canonical name.
func (u Union) String() string {
	return string(u)
}

// DisplayName renders the union with its suffix for printed material.
func (u Union) DisplayName() string {
	if u == "" {
		return ""
	}
	return string(u) + " Union"
}

// Equal compares two unions after normalization.
func (u Union) Equal(other Union) bool {
	return NormalizeUnion(string(u)) == NormalizeUnion(string(other))
}

// IsFeeExempt reports whether candidates of the union skip the payment step.
func IsFeeExempt(u Union) bool {
	return NormalizeUnion(string(u)) == UnionHarit
}
