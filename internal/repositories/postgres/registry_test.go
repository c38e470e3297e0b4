package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

func TestLikeEscaper(t *testing.T) {
	if got := likeEscaper.Replace(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("unexpected escape %q", got)
	}
}

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *int:
			*p = r[i].(int)
		case *bool:
			*p = r[i].(bool)
		case *[]byte:
			*p = r[i].([]byte)
		case *time.Time:
			*p = r[i].(time.Time)
		case interface{ Scan(any) error }:
			if err := p.Scan(r[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func TestScanRegistrationDecodesJSONColumns(t *testing.T) {
	info, _ := json.Marshal(domain.PersonalInfo{Union: "tirhut union", Name: "Asha", Email: "asha@example.com"})
	created := time.Date(2025, time.March, 3, 9, 0, 0, 0, domain.IST)
	row := fakeRow{
		"CBT123456", info, []byte(`{"photo":"gs://b/p.jpg"}`), "DAV Public School", "A (9:00 AM - 10:00 AM, 12-06-2025)",
		"dav-ranchi", 1, false, nil, nil, created, created,
	}
	reg, err := scanRegistration(row)
	if err != nil {
		t.Fatalf("scanRegistration: %v", err)
	}
	if reg.PersonalInfo.Union != domain.UnionTirhut {
		t.Fatalf("expected normalized union, got %q", reg.PersonalInfo.Union)
	}
	if reg.Documents[domain.DocumentPhoto] != "gs://b/p.jpg" {
		t.Fatalf("unexpected documents %+v", reg.Documents)
	}
	if reg.TransactionDate != nil || reg.TransactionNumber != "" {
		t.Fatalf("expected unpaid registration, got %+v", reg)
	}
	if reg.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps")
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(nil).Valid {
		t.Fatal("nil should be invalid")
	}
	at := time.Date(2025, time.January, 1, 0, 0, 0, 0, domain.IST)
	if nt := nullTime(&at); !nt.Valid || nt.Time.Location() != time.UTC {
		t.Fatalf("unexpected %+v", nt)
	}
}
