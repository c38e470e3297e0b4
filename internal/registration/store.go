// Package registration holds the client-side aggregate a candidate builds up
// across the registration flow. Every mutation replaces the aggregate with a
// fresh copy, so snapshots handed out earlier never change.
package registration

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

// Data is one candidate's accumulated application.
type Data struct {
	PersonalInfo      domain.PersonalInfo
	Photo             string
	Signature         string
	CV                *string
	WorkCert          *string
	QualCert          *string
	Documents         map[domain.DocumentKind]string
	ExamCenter        string
	ExamShift         string
	ApplicationNumber string
	PaymentStatus     bool
	TransactionNumber string
	UpdatedAt         time.Time
}

func (d Data) clone() Data {
	out := d
	out.PersonalInfo = d.PersonalInfo.Clone()
	out.CV = cloneStringPtr(d.CV)
	out.WorkCert = cloneStringPtr(d.WorkCert)
	out.QualCert = cloneStringPtr(d.QualCert)
	if d.Documents != nil {
		out.Documents = make(map[domain.DocumentKind]string, len(d.Documents))
		for k, v := range d.Documents {
			out.Documents[k] = v
		}
	}
	return out
}

// PersonalInfoPatch is a typed partial update. Nil fields are left as they are.
type PersonalInfoPatch struct {
	Union               *domain.Union
	Name                *string
	FatherName          *string
	MotherName          *string
	DOB                 *string
	Gender              *string
	Email               *string
	Mobile              *string
	Address             *string
	AadhaarNumber       *string
	SelectedPosts       []string
	DistrictPreferences []string
	HigherEducation     *string
	Percentage          *string
	PostDesignation     *string
	OrganizationName    *string
	TotalExperience     *string
}

func (p PersonalInfoPatch) applyTo(info *domain.PersonalInfo) {
	if p.Union != nil {
		info.Union = domain.NormalizeUnion(string(*p.Union))
	}
	setString(&info.Name, p.Name)
	setString(&info.FatherName, p.FatherName)
	setString(&info.MotherName, p.MotherName)
	setString(&info.DOB, p.DOB)
	setString(&info.Gender, p.Gender)
	setString(&info.Email, p.Email)
	setString(&info.Mobile, p.Mobile)
	setString(&info.Address, p.Address)
	setString(&info.AadhaarNumber, p.AadhaarNumber)
	setString(&info.HigherEducation, p.HigherEducation)
	setString(&info.Percentage, p.Percentage)
	setString(&info.PostDesignation, p.PostDesignation)
	setString(&info.OrganizationName, p.OrganizationName)
	setString(&info.TotalExperience, p.TotalExperience)
	if p.SelectedPosts != nil {
		info.SelectedPosts = append([]string(nil), p.SelectedPosts...)
	}
	if p.DistrictPreferences != nil {
		info.DistrictPreferences = append([]string(nil), p.DistrictPreferences...)
	}
}

// PatchFrom builds a patch that sets every field of info.
func PatchFrom(info domain.PersonalInfo) PersonalInfoPatch {
	union := info.Union
	return PersonalInfoPatch{
		Union:               &union,
		Name:                strPtr(info.Name),
		FatherName:          strPtr(info.FatherName),
		MotherName:          strPtr(info.MotherName),
		DOB:                 strPtr(info.DOB),
		Gender:              strPtr(info.Gender),
		Email:               strPtr(info.Email),
		Mobile:              strPtr(info.Mobile),
		Address:             strPtr(info.Address),
		AadhaarNumber:       strPtr(info.AadhaarNumber),
		SelectedPosts:       append([]string{}, info.SelectedPosts...),
		DistrictPreferences: append([]string{}, info.DistrictPreferences...),
		HigherEducation:     strPtr(info.HigherEducation),
		Percentage:          strPtr(info.Percentage),
		PostDesignation:     strPtr(info.PostDesignation),
		OrganizationName:    strPtr(info.OrganizationName),
		TotalExperience:     strPtr(info.TotalExperience),
	}
}

// Store owns the current aggregate.
type Store struct {
	mu    sync.RWMutex
	data  Data
	intn  domain.RandomIntn
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRandom overrides the source used for application numbers.
func WithRandom(intn domain.RandomIntn) Option {
	return func(s *Store) {
		s.intn = intn
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		intn:  domain.CryptoIntn,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) update(fn func(*Data)) Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.clone()
	fn(&next)
	next.UpdatedAt = s.clock().UTC()
	s.data = next
	return next.clone()
}

// Snapshot returns a deep copy of the current aggregate.
func (s *Store) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.clone()
}

// Reset clears the aggregate.
func (s *Store) Reset() Data {
	return s.update(func(d *Data) {
		*d = Data{}
	})
}

// UpdatePersonalInfo merges patch into the personal info.
func (s *Store) UpdatePersonalInfo(patch PersonalInfoPatch) Data {
	return s.update(func(d *Data) {
		patch.applyTo(&d.PersonalInfo)
	})
}

func (s *Store) UpdatePhoto(url string) Data {
	return s.update(func(d *Data) { d.Photo = url })
}

func (s *Store) UpdateSignature(url string) Data {
	return s.update(func(d *Data) { d.Signature = url })
}

// UpdateCV replaces the CV reference; nil clears it.
func (s *Store) UpdateCV(url *string) Data {
	return s.update(func(d *Data) { d.CV = cloneStringPtr(url) })
}

func (s *Store) UpdateWorkCert(url *string) Data {
	return s.update(func(d *Data) { d.WorkCert = cloneStringPtr(url) })
}

func (s *Store) UpdateQualCert(url *string) Data {
	return s.update(func(d *Data) { d.QualCert = cloneStringPtr(url) })
}

// UpdateDocuments merges one supporting document into the documents map.
func (s *Store) UpdateDocuments(kind domain.DocumentKind, url string) (Data, error) {
	if !domain.IsSupportingDocument(kind) {
		return s.Snapshot(), fmt.Errorf("registration: unsupported document kind %q", kind)
	}
	return s.update(func(d *Data) {
		if d.Documents == nil {
			d.Documents = make(map[domain.DocumentKind]string, 1)
		}
		d.Documents[kind] = url
	}), nil
}

// UpdatePaymentStatus sets the paid flag and transaction number together.
func (s *Store) UpdatePaymentStatus(paid bool, transactionNumber string) Data {
	return s.update(func(d *Data) {
		d.PaymentStatus = paid
		d.TransactionNumber = strings.TrimSpace(transactionNumber)
	})
}

// RecordAllocation stores the center and shift label assigned by the backend.
func (s *Store) RecordAllocation(center, shiftLabel string) Data {
	return s.update(func(d *Data) {
		d.ExamCenter = center
		d.ExamShift = shiftLabel
	})
}

// SetApplicationNumber stores an identifier issued elsewhere.
func (s *Store) SetApplicationNumber(value string) Data {
	return s.update(func(d *Data) {
		d.ApplicationNumber = domain.NormalizeApplicationNumber(value)
	})
}

// GenerateApplicationNumber creates, stores and returns a new identifier.
func (s *Store) GenerateApplicationNumber() string {
	value := domain.NewApplicationNumber(s.intn)
	s.SetApplicationNumber(value)
	return value
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func strPtr(v string) *string {
	return &v
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
