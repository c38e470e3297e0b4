package domain

import (
	"fmt"
	"time"
)

// Center is a physical exam venue with a fixed seating capacity.
type Center struct {
	ID              string
	Name            string
	Location        string
	Capacity        int
	CurrentBookings int
}

// HasCapacity reports whether at least one seat remains.
func (c Center) HasCapacity() bool {
	return c.CurrentBookings < c.Capacity
}

// Shift is a scheduled exam slot with its own capacity, independent of centers.
type Shift struct {
	ID              int
	Name            string
	Time            string
	Date            string
	Capacity        int
	CurrentBookings int
}

// HasCapacity reports whether at least one seat remains.
func (s Shift) HasCapacity() bool {
	return s.CurrentBookings < s.Capacity
}

// Label renders the shift the way it is printed on registrations and admit cards.
func (s Shift) Label() string {
	return fmt.Sprintf("%s (%s, %s)", s.Name, s.Time, s.Date)
}

// Assignment is the center and shift booked for one candidate.
type Assignment struct {
	Center Center
	Shift  Shift
}

// PersonalInfo holds the candidate-entered fields of a registration.
type PersonalInfo struct {
	Union               Union    `json:"union"`
	Name                string   `json:"name"`
	FatherName          string   `json:"fatherName"`
	MotherName          string   `json:"motherName"`
	DOB                 string   `json:"dob"`
	Gender              string   `json:"gender"`
	Email               string   `json:"email"`
	Mobile              string   `json:"mobile"`
	Address             string   `json:"address"`
	AadhaarNumber       string   `json:"aadhaarNumber"`
	SelectedPosts       []string `json:"selectedPosts"`
	DistrictPreferences []string `json:"districtPreferences"`
	HigherEducation     string   `json:"higherEducation"`
	Percentage          string   `json:"percentage"`
	PostDesignation     string   `json:"postDesignation,omitempty"`
	OrganizationName    string   `json:"organizationName,omitempty"`
	TotalExperience     string   `json:"totalExperience,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (p PersonalInfo) Clone() PersonalInfo {
	out := p
	out.SelectedPosts = cloneStrings(p.SelectedPosts)
	out.DistrictPreferences = cloneStrings(p.DistrictPreferences)
	return out
}

// DocumentKind enumerates the uploads a registration can carry.
type DocumentKind string

const (
	DocumentPhoto        DocumentKind = "photo"
	DocumentSignature    DocumentKind = "signature"
	DocumentCV           DocumentKind = "cv"
	DocumentWorkCert     DocumentKind = "workCert"
	DocumentQualCert     DocumentKind = "qualCert"
	DocumentIDProof      DocumentKind = "idProof"
	DocumentAddressProof DocumentKind = "addressProof"
)

// SupportingDocumentKinds are the kinds accepted by the post-registration upload step.
var SupportingDocumentKinds = []DocumentKind{DocumentIDProof, DocumentAddressProof}

// IsSupportingDocument reports whether kind belongs to the post-registration upload set.
func IsSupportingDocument(kind DocumentKind) bool {
	for _, candidate := range SupportingDocumentKinds {
		if candidate == kind {
			return true
		}
	}
	return false
}

// Registration is the persisted candidate record.
type Registration struct {
	ApplicationNumber string
	PersonalInfo      PersonalInfo
	// Documents maps each uploaded kind to its storage reference.
	Documents         map[DocumentKind]string
	ExamCenter        string
	ExamShift         string
	CenterID          string
	ShiftID           int
	PaymentStatus     bool
	TransactionNumber string
	TransactionDate   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy of the registration.
func (r Registration) Clone() Registration {
	out := r
	out.PersonalInfo = r.PersonalInfo.Clone()
	if r.Documents != nil {
		out.Documents = make(map[DocumentKind]string, len(r.Documents))
		for kind, ref := range r.Documents {
			out.Documents[kind] = ref
		}
	}
	if r.TransactionDate != nil {
		ts := *r.TransactionDate
		out.TransactionDate = &ts
	}
	return out
}

// ApplyAssignment records the booked center and shift on the registration.
func (r *Registration) ApplyAssignment(a Assignment) {
	r.ExamCenter = a.Center.Name
	r.ExamShift = a.Shift.Label()
	r.CenterID = a.Center.ID
	r.ShiftID = a.Shift.ID
}

// RegistrationFilter narrows admin listings.
type RegistrationFilter struct {
	// Search matches application number, name or email, case-insensitively.
	Search string
	Limit  int
}

// PaymentOrderStatus tracks a provider order through its lifecycle.
type PaymentOrderStatus string

const (
	PaymentOrderCreated PaymentOrderStatus = "created"
	PaymentOrderPaid    PaymentOrderStatus = "paid"
	PaymentOrderFailed  PaymentOrderStatus = "failed"
)

// PaymentOrder is a provider order opened for an application fee.
type PaymentOrder struct {
	ID                string
	ApplicationNumber string
	Provider          string
	Union             Union
	Amount            int64
	Currency          string
	Receipt           string
	Status            PaymentOrderStatus
	PaymentID         string
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// Issuer is the organisation printed on a union's admit cards.
type Issuer struct {
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
	Email   string `yaml:"email"`
}

// AdmitCard is the data rendered onto a candidate's admit card.
type AdmitCard struct {
	Registration     Registration
	ExamTitle        string
	GateEntryMinutes int
	Issuer           Issuer
	// PhotoURL and SignatureURL are viewable links resolved from storage references.
	PhotoURL     string
	SignatureURL string
	Instructions string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
