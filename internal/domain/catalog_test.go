package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()

	require.Equal(t, "INR", cat.Exam.Currency)
	require.Equal(t, 60, cat.Exam.GateEntryMinutes)
	require.Len(t, cat.Posts, 9)
	require.Len(t, cat.Centers, 3)
	require.Len(t, cat.Shifts, 3)
	for _, c := range cat.Centers {
		require.Equal(t, 750, c.Capacity)
		require.Zero(t, c.CurrentBookings)
	}
	require.Equal(t, "A (9:00 AM - 10:00 AM, 12-06-2025)", cat.Shifts[0].Label())

	harit, err := cat.Union("Harit Union")
	require.NoError(t, err)
	require.Equal(t, UnionHarit, harit.Name)
	require.Nil(t, harit.ReleaseAt())
	require.Contains(t, harit.Districts, "Bhojpur")

	tirhut, err := cat.Union(UnionTirhut)
	require.NoError(t, err)
	require.Equal(t, int64(50000), tirhut.Fee)
	require.NotNil(t, tirhut.ReleaseAt())
	require.True(t, tirhut.ReleaseAt().Equal(time.Date(2025, 6, 18, 0, 0, 0, 0, IST)))
	require.Equal(t, "Shiva Protection Force Private Limited", tirhut.Issuer.Name)
}

func TestCatalogDistrictsAreIndependentCopies(t *testing.T) {
	cat := DefaultCatalog()
	districts := cat.Districts("harit")
	require.NotEmpty(t, districts)
	districts[0] = "Mutated"
	require.NotEqual(t, "Mutated", cat.Districts(UnionHarit)[0])
	require.Nil(t, cat.Districts("Unknown"))
}

func TestCatalogUnknownUnion(t *testing.T) {
	_, err := DefaultCatalog().Union("Magadh")
	require.True(t, errors.Is(err, ErrUnknownUnion))
}

func TestInitialPoolsAreCopies(t *testing.T) {
	cat := DefaultCatalog()
	centers := cat.InitialCenters()
	centers[0].CurrentBookings = 10
	require.Zero(t, cat.InitialCenters()[0].CurrentBookings)
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"missing capacity": `
unions: [{name: Harit, districts: [Patna]}]
centers: [{id: a, name: A}]
shifts: [{id: 1, name: A, capacity: 1}]
`,
		"duplicate shift": `
unions: [{name: Harit, districts: [Patna]}]
centers: [{id: a, name: A, capacity: 1}]
shifts: [{id: 1, name: A, capacity: 1}, {id: 1, name: B, capacity: 1}]
`,
		"bad release date": `
unions: [{name: Harit, districts: [Patna], admitCardReleaseDate: "18/06/2025"}]
centers: [{id: a, name: A, capacity: 1}]
shifts: [{id: 1, name: A, capacity: 1}]
`,
		"no shifts": `
unions: [{name: Harit, districts: [Patna]}]
centers: [{id: a, name: A, capacity: 1}]
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(strings.TrimSpace(doc)))
			require.Error(t, err)
		})
	}
}

func TestParseCatalogNormalizesUnionNames(t *testing.T) {
	cat, err := ParseCatalog([]byte(`
unions: [{name: "harit union", districts: [Patna]}]
centers: [{id: a, name: A, capacity: 1}]
shifts: [{id: 1, name: A, capacity: 1}]
`))
	require.NoError(t, err)
	require.Equal(t, UnionHarit, cat.Unions[0].Name)
	require.Equal(t, "INR", cat.Exam.Currency)
}
