package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// IST is the zone release dates are expressed in.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Catalog is the static exam configuration: posts, unions, pools and printed text.
type Catalog struct {
	Exam            ExamInfo
	Posts           []string
	EducationLevels []string
	Unions          []UnionProfile
	Centers         []Center
	Shifts          []Shift
	// Instructions is Markdown printed on admit cards.
	Instructions string
}

type catalogFile struct {
	Exam            ExamInfo        `yaml:"exam"`
	Posts           []string        `yaml:"posts"`
	EducationLevels []string        `yaml:"educationLevels"`
	Unions          []UnionProfile  `yaml:"unions"`
	Centers         []catalogCenter `yaml:"centers"`
	Shifts          []catalogShift  `yaml:"shifts"`
	Instructions    string          `yaml:"instructions"`
}

// ExamInfo is printed on every admit card.
type ExamInfo struct {
	Title            string `yaml:"title"`
	GateEntryMinutes int    `yaml:"gateEntryMinutes"`
	Currency         string `yaml:"currency"`
}

// UnionProfile carries the per-union rules.
type UnionProfile struct {
	Name                 Union    `yaml:"name"`
	Fee                  int64    `yaml:"fee"`
	Districts            []string `yaml:"districts"`
	AdmitCardReleaseDate string   `yaml:"admitCardReleaseDate"`
	Issuer               Issuer   `yaml:"issuer"`

	releaseAt *time.Time
}

// ReleaseAt returns the instant admit cards become available, or nil when unrestricted.
func (u UnionProfile) ReleaseAt() *time.Time {
	return u.releaseAt
}

type catalogCenter struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Capacity int    `yaml:"capacity"`
}

type catalogShift struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	Time     string `yaml:"time"`
	Date     string `yaml:"date"`
	Capacity int    `yaml:"capacity"`
}

// ErrUnknownUnion is returned for unions absent from the catalogue.
var ErrUnknownUnion = errors.New("domain: unknown union")

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
	defaultCatalogErr  error
)

// DefaultCatalog returns the embedded catalogue. It panics if the embedded file is invalid.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(defaultCatalogYAML)
	})
	if defaultCatalogErr != nil {
		panic(defaultCatalogErr)
	}
	return defaultCatalog
}

// ParseCatalog decodes and validates a YAML catalogue.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	cat := Catalog{
		Exam:            file.Exam,
		Posts:           file.Posts,
		EducationLevels: file.EducationLevels,
		Unions:          file.Unions,
		Instructions:    file.Instructions,
	}

	seenCenters := make(map[string]struct{}, len(file.Centers))
	for _, c := range file.Centers {
		id := strings.TrimSpace(c.ID)
		if id == "" || c.Capacity <= 0 {
			return nil, fmt.Errorf("catalog: center %q needs an id and a positive capacity", c.Name)
		}
		if _, dup := seenCenters[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate center id %q", id)
		}
		seenCenters[id] = struct{}{}
		cat.Centers = append(cat.Centers, Center{ID: id, Name: c.Name, Location: c.Location, Capacity: c.Capacity})
	}

	seenShifts := make(map[int]struct{}, len(file.Shifts))
	for _, s := range file.Shifts {
		if s.Capacity <= 0 {
			return nil, fmt.Errorf("catalog: shift %d needs a positive capacity", s.ID)
		}
		if _, dup := seenShifts[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate shift id %d", s.ID)
		}
		seenShifts[s.ID] = struct{}{}
		cat.Shifts = append(cat.Shifts, Shift{ID: s.ID, Name: s.Name, Time: s.Time, Date: s.Date, Capacity: s.Capacity})
	}

	for i := range cat.Unions {
		u := &cat.Unions[i]
		u.Name = NormalizeUnion(string(u.Name))
		if u.Name == "" || len(u.Districts) == 0 {
			return nil, errors.New("catalog: every union needs a name and districts")
		}
		if raw := strings.TrimSpace(u.AdmitCardReleaseDate); raw != "" {
			ts, err := time.ParseInLocation("2006-01-02", raw, IST)
			if err != nil {
				return nil, fmt.Errorf("catalog: union %s release date: %w", u.Name, err)
			}
			u.releaseAt = &ts
		}
	}

	if len(cat.Centers) == 0 || len(cat.Shifts) == 0 {
		return nil, errors.New("catalog: centers and shifts are required")
	}
	if strings.TrimSpace(cat.Exam.Currency) == "" {
		cat.Exam.Currency = "INR"
	}
	return &cat, nil
}

// Union looks up a union profile by any accepted spelling.
func (c *Catalog) Union(u Union) (UnionProfile, error) {
	target := NormalizeUnion(string(u))
	for _, profile := range c.Unions {
		if profile.Name == target {
			return profile, nil
		}
	}
	return UnionProfile{}, fmt.Errorf("%w: %q", ErrUnknownUnion, string(u))
}

// Districts returns the allowed district list for a union, or nil when unknown.
func (c *Catalog) Districts(u Union) []string {
	profile, err := c.Union(u)
	if err != nil {
		return nil
	}
	return cloneStrings(profile.Districts)
}

// HasPost reports whether post is offered.
func (c *Catalog) HasPost(post string) bool {
	for _, candidate := range c.Posts {
		if candidate == post {
			return true
		}
	}
	return false
}

// InitialCenters returns fresh copies of the seeded centers with zero bookings.
func (c *Catalog) InitialCenters() []Center {
	out := make([]Center, len(c.Centers))
	copy(out, c.Centers)
	return out
}

// InitialShifts returns fresh copies of the seeded shifts with zero bookings.
func (c *Catalog) InitialShifts() []Shift {
	out := make([]Shift, len(c.Shifts))
	copy(out, c.Shifts)
	return out
}
