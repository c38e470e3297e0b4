// Package portalapi defines the JSON contract between the portal service and
// its clients.
package portalapi

import (
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

// BasePath is the prefix every portal endpoint is mounted under.
const BasePath = "/api"

// RegisterRequest is the registration form with its uploads as data URLs.
type RegisterRequest struct {
	domain.PersonalInfo
	Photo     string `json:"photo"`
	Signature string `json:"signature"`
	CV        string `json:"cv,omitempty"`
	WorkCert  string `json:"workCert,omitempty"`
	QualCert  string `json:"qualCert"`
}

// Uploads returns the form's files.
func (r RegisterRequest) Uploads() domain.RegistrationUploads {
	return domain.RegistrationUploads{
		Photo:     r.Photo,
		Signature: r.Signature,
		CV:        r.CV,
		WorkCert:  r.WorkCert,
		QualCert:  r.QualCert,
	}
}

// RegisterResponse acknowledges an accepted registration.
type RegisterResponse struct {
	Message           string `json:"message"`
	ApplicationNumber string `json:"applicationNumber"`
	ExamCenter        string `json:"examCenter"`
	ExamShift         string `json:"examShift"`
}

// UploadDocumentRequest carries one supporting document. IDProof is the
// legacy field; Kind and Document cover every supporting kind.
type UploadDocumentRequest struct {
	ApplicationNumber string              `json:"applicationNumber"`
	IDProof           string              `json:"idProof,omitempty"`
	Kind              domain.DocumentKind `json:"kind,omitempty"`
	Document          string              `json:"document,omitempty"`
}

// Resolve returns the kind and payload of the upload.
func (r UploadDocumentRequest) Resolve() (domain.DocumentKind, string) {
	if r.Kind != "" {
		return r.Kind, r.Document
	}
	return domain.DocumentIDProof, r.IDProof
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Registration is the candidate record as returned to clients.
type Registration struct {
	domain.PersonalInfo
	ApplicationNumber string                         `json:"applicationNumber"`
	Photo             string                         `json:"photo,omitempty"`
	Signature         string                         `json:"signature,omitempty"`
	CV                string                         `json:"cv,omitempty"`
	WorkCert          string                         `json:"workCert,omitempty"`
	QualCert          string                         `json:"qualCert,omitempty"`
	Documents         map[domain.DocumentKind]string `json:"documents,omitempty"`
	ExamCenter        string                         `json:"examCenter"`
	ExamShift         string                         `json:"examShift"`
	PaymentStatus     bool                           `json:"paymentStatus"`
	TransactionNumber string                         `json:"transactionNumber,omitempty"`
	TransactionDate   *time.Time                     `json:"transactionDate,omitempty"`
	CreatedAt         time.Time                      `json:"createdAt"`
}

var documentFields = map[domain.DocumentKind]func(*Registration) *string{
	domain.DocumentPhoto:     func(r *Registration) *string { return &r.Photo },
	domain.DocumentSignature: func(r *Registration) *string { return &r.Signature },
	domain.DocumentCV:        func(r *Registration) *string { return &r.CV },
	domain.DocumentWorkCert:  func(r *Registration) *string { return &r.WorkCert },
	domain.DocumentQualCert:  func(r *Registration) *string { return &r.QualCert },
}

// FromDomain converts a stored registration. refs maps stored document
// references to client-visible URLs; nil keeps the references as they are.
func FromDomain(reg domain.Registration, refs func(string) string) Registration {
	out := Registration{
		PersonalInfo:      reg.PersonalInfo.Clone(),
		ApplicationNumber: reg.ApplicationNumber,
		ExamCenter:        reg.ExamCenter,
		ExamShift:         reg.ExamShift,
		PaymentStatus:     reg.PaymentStatus,
		TransactionNumber: reg.TransactionNumber,
		TransactionDate:   reg.TransactionDate,
		CreatedAt:         reg.CreatedAt,
	}
	for kind, ref := range reg.Documents {
		if refs != nil {
			ref = refs(ref)
		}
		if field, ok := documentFields[kind]; ok {
			*field(&out) = ref
			continue
		}
		if out.Documents == nil {
			out.Documents = make(map[domain.DocumentKind]string)
		}
		out.Documents[kind] = ref
	}
	return out
}

// CreateOrderRequest asks for a payment order.
type CreateOrderRequest struct {
	ApplicationNumber string       `json:"applicationNumber"`
	Amount            int64        `json:"amount,omitempty"`
	Union             domain.Union `json:"union,omitempty"`
}

// Order is the provider order embedded in CreateOrderResponse.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrderResponse carries everything a checkout needs.
type CreateOrderResponse struct {
	Order    Order        `json:"order"`
	OrderID  string       `json:"order_id"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	Union    domain.Union `json:"union"`
	KeyID    string       `json:"key_id"`
	Provider string       `json:"provider"`

	// ClientSecret is set when the provider confirms on the client (Stripe).
	ClientSecret string `json:"client_secret,omitempty"`
}

// VerifyPaymentRequest is the checkout's signed result.
type VerifyPaymentRequest struct {
	ApplicationNumber string       `json:"applicationNumber"`
	PaymentID         string       `json:"razorpay_payment_id"`
	OrderID           string       `json:"razorpay_order_id"`
	Signature         string       `json:"razorpay_signature"`
	Union             domain.Union `json:"union,omitempty"`
}

// VerifyPaymentResponse confirms a verified payment.
type VerifyPaymentResponse struct {
	Message           string       `json:"message"`
	Union             domain.Union `json:"union"`
	TransactionNumber string       `json:"transactionNumber"`
}

// AdmitCardResponse is returned by the admit card lookup.
type AdmitCardResponse struct {
	User      AdmitCard `json:"user"`
	EmailSent bool      `json:"emailSent"`
}

// AdmitCard is the registration plus the printed exam details.
type AdmitCard struct {
	Registration
	ExamTitle        string        `json:"examTitle"`
	GateEntryMinutes int           `json:"gateEntryMinutes"`
	Issuer           domain.Issuer `json:"issuer"`
	Instructions     string        `json:"instructions,omitempty"`
}

// ApplicationNumberRequest identifies one registration.
type ApplicationNumberRequest struct {
	ApplicationNumber string `json:"applicationNumber"`
}

// AdminListRequest is the admin listing body. Credentials may be omitted when
// a bearer session token is sent.
type AdminListRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// AdminCredentials is the body of admin login and the legacy delete call.
type AdminCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLoginResponse carries an admin session token.
type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DocumentURLResponse is a short-lived view URL.
type DocumentURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ReconcileResponse summarises a reconciliation run.
type ReconcileResponse struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Failed  int `json:"failed"`
}

// ErrorResponse is the error body every failing endpoint writes.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}
