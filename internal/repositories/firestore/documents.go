package firestore

import (
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

type centerDocument struct {
	ID              string `firestore:"id"`
	Position        int    `firestore:"position"`
	Name            string `firestore:"name"`
	Location        string `firestore:"location"`
	Capacity        int    `firestore:"capacity"`
	CurrentBookings int    `firestore:"current_bookings"`
}

func (d centerDocument) toDomain() domain.Center {
	return domain.Center{ID: d.ID, Name: d.Name, Location: d.Location, Capacity: d.Capacity, CurrentBookings: d.CurrentBookings}
}

type shiftDocument struct {
	ID              int    `firestore:"id"`
	Position        int    `firestore:"position"`
	Name            string `firestore:"name"`
	Time            string `firestore:"time"`
	Date            string `firestore:"date"`
	Capacity        int    `firestore:"capacity"`
	CurrentBookings int    `firestore:"current_bookings"`
}

func (d shiftDocument) toDomain() domain.Shift {
	return domain.Shift{ID: d.ID, Name: d.Name, Time: d.Time, Date: d.Date, Capacity: d.Capacity, CurrentBookings: d.CurrentBookings}
}

type personalInfoDocument struct {
	Union               string   `firestore:"union"`
	Name                string   `firestore:"name"`
	FatherName          string   `firestore:"father_name"`
	MotherName          string   `firestore:"mother_name"`
	DOB                 string   `firestore:"dob"`
	Gender              string   `firestore:"gender"`
	Email               string   `firestore:"email"`
	Mobile              string   `firestore:"mobile"`
	Address             string   `firestore:"address"`
	AadhaarNumber       string   `firestore:"aadhaar_number"`
	SelectedPosts       []string `firestore:"selected_posts"`
	DistrictPreferences []string `firestore:"district_preferences"`
	HigherEducation     string   `firestore:"higher_education"`
	Percentage          string   `firestore:"percentage"`
	PostDesignation     string   `firestore:"post_designation,omitempty"`
	OrganizationName    string   `firestore:"organization_name,omitempty"`
	TotalExperience     string   `firestore:"total_experience,omitempty"`
}

type registrationDocument struct {
	ApplicationNumber string               `firestore:"application_number"`
	PersonalInfo      personalInfoDocument `firestore:"personal_info"`
	// SearchName and SearchEmail are lower-cased copies for admin lookups.
	SearchName        string            `firestore:"search_name"`
	SearchEmail       string            `firestore:"search_email"`
	Documents         map[string]string `firestore:"documents"`
	ExamCenter        string            `firestore:"exam_center"`
	ExamShift         string            `firestore:"exam_shift"`
	CenterID          string            `firestore:"center_id"`
	ShiftID           int               `firestore:"shift_id"`
	PaymentStatus     bool              `firestore:"payment_status"`
	TransactionNumber string            `firestore:"transaction_number,omitempty"`
	TransactionDate   *time.Time        `firestore:"transaction_date,omitempty"`
	CreatedAt         time.Time         `firestore:"created_at"`
	UpdatedAt         time.Time         `firestore:"updated_at"`
}

func newRegistrationDocument(reg domain.Registration) registrationDocument {
	info := reg.PersonalInfo
	docs := make(map[string]string, len(reg.Documents))
	for kind, ref := range reg.Documents {
		docs[string(kind)] = ref
	}
	return registrationDocument{
		ApplicationNumber: reg.ApplicationNumber,
		PersonalInfo: personalInfoDocument{
			Union:               info.Union.String(),
			Name:                info.Name,
			FatherName:          info.FatherName,
			MotherName:          info.MotherName,
			DOB:                 info.DOB,
			Gender:              info.Gender,
			Email:               info.Email,
			Mobile:              info.Mobile,
			Address:             info.Address,
			AadhaarNumber:       info.AadhaarNumber,
			SelectedPosts:       info.SelectedPosts,
			DistrictPreferences: info.DistrictPreferences,
			HigherEducation:     info.HigherEducation,
			Percentage:          info.Percentage,
			PostDesignation:     info.PostDesignation,
			OrganizationName:    info.OrganizationName,
			TotalExperience:     info.TotalExperience,
		},
		SearchName:        lower(info.Name),
		SearchEmail:       lower(info.Email),
		Documents:         docs,
		ExamCenter:        reg.ExamCenter,
		ExamShift:         reg.ExamShift,
		CenterID:          reg.CenterID,
		ShiftID:           reg.ShiftID,
		PaymentStatus:     reg.PaymentStatus,
		TransactionNumber: reg.TransactionNumber,
		TransactionDate:   utcPtr(reg.TransactionDate),
		CreatedAt:         reg.CreatedAt.UTC(),
		UpdatedAt:         reg.UpdatedAt.UTC(),
	}
}

func (d registrationDocument) toDomain() domain.Registration {
	info := d.PersonalInfo
	var docs map[domain.DocumentKind]string
	if len(d.Documents) > 0 {
		docs = make(map[domain.DocumentKind]string, len(d.Documents))
		for kind, ref := range d.Documents {
			docs[domain.DocumentKind(kind)] = ref
		}
	}
	return domain.Registration{
		ApplicationNumber: d.ApplicationNumber,
		PersonalInfo: domain.PersonalInfo{
			Union:               domain.NormalizeUnion(info.Union),
			Name:                info.Name,
			FatherName:          info.FatherName,
			MotherName:          info.MotherName,
			DOB:                 info.DOB,
			Gender:              info.Gender,
			Email:               info.Email,
			Mobile:              info.Mobile,
			Address:             info.Address,
			AadhaarNumber:       info.AadhaarNumber,
			SelectedPosts:       info.SelectedPosts,
			DistrictPreferences: info.DistrictPreferences,
			HigherEducation:     info.HigherEducation,
			Percentage:          info.Percentage,
			PostDesignation:     info.PostDesignation,
			OrganizationName:    info.OrganizationName,
			TotalExperience:     info.TotalExperience,
		},
		Documents:         docs,
		ExamCenter:        d.ExamCenter,
		ExamShift:         d.ExamShift,
		CenterID:          d.CenterID,
		ShiftID:           d.ShiftID,
		PaymentStatus:     d.PaymentStatus,
		TransactionNumber: d.TransactionNumber,
		TransactionDate:   utcPtr(d.TransactionDate),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

type paymentOrderDocument struct {
	ID                string     `firestore:"id"`
	ApplicationNumber string     `firestore:"application_number"`
	Provider          string     `firestore:"provider"`
	Union             string     `firestore:"union"`
	Amount            int64      `firestore:"amount"`
	Currency          string     `firestore:"currency"`
	Receipt           string     `firestore:"receipt"`
	Status            string     `firestore:"status"`
	PaymentID         string     `firestore:"payment_id,omitempty"`
	CreatedAt         time.Time  `firestore:"created_at"`
	PaidAt            *time.Time `firestore:"paid_at,omitempty"`
}

func newPaymentOrderDocument(order domain.PaymentOrder) paymentOrderDocument {
	return paymentOrderDocument{
		ID:                order.ID,
		ApplicationNumber: order.ApplicationNumber,
		Provider:          order.Provider,
		Union:             order.Union.String(),
		Amount:            order.Amount,
		Currency:          order.Currency,
		Receipt:           order.Receipt,
		Status:            string(order.Status),
		PaymentID:         order.PaymentID,
		CreatedAt:         order.CreatedAt.UTC(),
		PaidAt:            utcPtr(order.PaidAt),
	}
}

func (d paymentOrderDocument) toDomain() domain.PaymentOrder {
	return domain.PaymentOrder{
		ID:                d.ID,
		ApplicationNumber: d.ApplicationNumber,
		Provider:          d.Provider,
		Union:             domain.NormalizeUnion(d.Union),
		Amount:            d.Amount,
		Currency:          d.Currency,
		Receipt:           d.Receipt,
		Status:            domain.PaymentOrderStatus(d.Status),
		PaymentID:         d.PaymentID,
		CreatedAt:         d.CreatedAt.UTC(),
		PaidAt:            utcPtr(d.PaidAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
