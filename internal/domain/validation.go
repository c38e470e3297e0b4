package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	emailPattern       = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)
	mobilePattern      = regexp.MustCompile(`^[0-9]{10}$`)
	aadhaarPattern     = regexp.MustCompile(`^[0-9]{12}$`)
	percentagePattern  = regexp.MustCompile(`^(?:100|[0-9]{1,2})(\.[0-9]{1,2})?$`)
	experiencePattern  = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	transactionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,40}$`)
)

// ValidationError collects field-level messages. It is returned before any
// storage or network call is made.
type ValidationError struct {
	Fields map[string]string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, e.Fields[key])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AsValidationError unwraps err into a ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var target *ValidationError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ValidatePersonalInfo checks required fields, formats and the union-specific district list.
func ValidatePersonalInfo(cat *Catalog, info PersonalInfo) error {
	verr := &ValidationError{}

	union := NormalizeUnion(string(info.Union))
	var profile UnionProfile
	if union == "" {
		verr.add("union", "Please select a union")
	} else if p, err := cat.Union(union); err != nil {
		verr.add("union", fmt.Sprintf("Unknown union %q", string(info.Union)))
	} else {
		profile = p
	}

	required := []struct {
		field, value, message string
	}{
		{"name", info.Name, "Name is required"},
		{"fatherName", info.FatherName, "Father's name is required"},
		{"motherName", info.MotherName, "Mother's name is required"},
		{"dob", info.DOB, "Date of birth is required"},
		{"gender", info.Gender, "Gender is required"},
		{"email", info.Email, "Email is required"},
		{"mobile", info.Mobile, "Mobile number is required"},
		{"address", info.Address, "Address is required"},
		{"aadhaarNumber", info.AadhaarNumber, "Aadhaar number is required"},
		{"higherEducation", info.HigherEducation, "Higher education is required"},
		{"percentage", info.Percentage, "Percentage is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.add(r.field, r.message)
		}
	}

	if v := strings.TrimSpace(info.Email); v != "" && !emailPattern.MatchString(v) {
		verr.add("email", "Invalid email address")
	}
	if v := strings.TrimSpace(info.Mobile); v != "" && !mobilePattern.MatchString(v) {
		verr.add("mobile", "Mobile number must be 10 digits")
	}
	if v := strings.TrimSpace(info.AadhaarNumber); v != "" && !aadhaarPattern.MatchString(v) {
		verr.add("aadhaarNumber", "Aadhaar number must be 12 digits")
	}
	if v := strings.TrimSpace(info.Percentage); v != "" && !percentagePattern.MatchString(v) {
		verr.add("percentage", "Percentage must be between 0 and 100 with up to two decimals")
	}
	if v := strings.TrimSpace(info.TotalExperience); v != "" && !experiencePattern.MatchString(v) {
		verr.add("totalExperience", "Experience must be a number of years")
	}
	if v := strings.TrimSpace(info.HigherEducation); v != "" && len(cat.EducationLevels) > 0 && !containsString(cat.EducationLevels, v) {
		verr.add("higherEducation", fmt.Sprintf("Unknown education level %q", v))
	}

	if len(info.SelectedPosts) == 0 {
		verr.add("selectedPosts", "Please select at least one post")
	}
	for _, post := range info.SelectedPosts {
		if !cat.HasPost(post) {
			verr.add("selectedPosts", fmt.Sprintf("Unknown post %q", post))
			break
		}
	}

	if len(info.DistrictPreferences) == 0 {
		verr.add("districtPreferences", "Please select at least one district preference")
	} else if profile.Name != "" {
		for _, district := range info.DistrictPreferences {
			if !containsString(profile.Districts, district) {
				verr.add("districtPreferences", fmt.Sprintf("District %q is not available for %s", district, profile.Name.DisplayName()))
				break
			}
		}
	}

	return verr.orNil()
}

// ValidTransactionNumber reports whether a manually entered transaction number is well formed.
func ValidTransactionNumber(value string) bool {
	return transactionPattern.MatchString(strings.TrimSpace(value))
}

// BlobRule bounds the size and media types of one document kind.
type BlobRule struct {
	MaxBytes int
	Types    []string
}

var (
	imageTypes      = []string{"image/jpeg", "image/png"}
	imageOrPDFTypes = []string{"image/jpeg", "image/png", "application/pdf"}
)

// BlobRules lists the upload limits per document kind.
var BlobRules = map[DocumentKind]BlobRule{
	DocumentPhoto:        {MaxBytes: 200 * 1024, Types: imageTypes},
	DocumentSignature:    {MaxBytes: 100 * 1024, Types: imageTypes},
	DocumentCV:           {MaxBytes: 2 * 1024 * 1024, Types: imageOrPDFTypes},
	DocumentWorkCert:     {MaxBytes: 2 * 1024 * 1024, Types: imageOrPDFTypes},
	DocumentQualCert:     {MaxBytes: 2 * 1024 * 1024, Types: imageOrPDFTypes},
	DocumentIDProof:      {MaxBytes: 500 * 1024, Types: imageOrPDFTypes},
	DocumentAddressProof: {MaxBytes: 500 * 1024, Types: imageOrPDFTypes},
}

// Blob is a decoded upload.
type Blob struct {
	ContentType string
	Data        []byte
}

// Extension returns the file extension for the blob's media type.
func (b Blob) Extension() string {
	switch b.ContentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

// DataURL encodes the blob back into a data URL.
func (b Blob) DataURL() string {
	return "data:" + b.ContentType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// ParseDataURL decodes a base64 data URL of the form data:<type>;base64,<payload>.
func ParseDataURL(raw string) (Blob, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return Blob{}, errors.New("expected a data URL")
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return Blob{}, errors.New("malformed data URL")
	}
	mediaType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return Blob{}, errors.New("data URL must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Blob{}, fmt.Errorf("decode data URL: %w", err)
	}
	return Blob{ContentType: strings.ToLower(strings.TrimSpace(mediaType)), Data: data}, nil
}

// ValidateBlob decodes raw and checks it against the rule for kind.
func ValidateBlob(kind DocumentKind, raw string) (Blob, error) {
	rule, ok := BlobRules[kind]
	if !ok {
		return Blob{}, &ValidationError{Fields: map[string]string{string(kind): fmt.Sprintf("Unsupported document kind %q", kind)}}
	}
	if strings.TrimSpace(raw) == "" {
		return Blob{}, &ValidationError{Fields: map[string]string{string(kind): fmt.Sprintf("%s is required", documentLabel(kind))}}
	}
	blob, err := ParseDataURL(raw)
	if err != nil {
		return Blob{}, &ValidationError{Fields: map[string]string{string(kind): err.Error()}}
	}
	if !containsString(rule.Types, blob.ContentType) {
		return Blob{}, &ValidationError{Fields: map[string]string{string(kind): fmt.Sprintf("%s must be one of %s", documentLabel(kind), strings.Join(rule.Types, ", "))}}
	}
	if len(blob.Data) > rule.MaxBytes {
		return Blob{}, &ValidationError{Fields: map[string]string{string(kind): fmt.Sprintf("File size should not exceed %dKB", rule.MaxBytes/1024)}}
	}
	return blob, nil
}

func documentLabel(kind DocumentKind) string {
	switch kind {
	case DocumentPhoto:
		return "Photo"
	case DocumentSignature:
		return "Signature"
	case DocumentCV:
		return "CV"
	case DocumentWorkCert:
		return "Work certificate"
	case DocumentQualCert:
		return "Higher Qualification Certificate"
	case DocumentIDProof:
		return "ID proof"
	case DocumentAddressProof:
		return "Address proof"
	default:
		return string(kind)
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// RegistrationUploads are the files sent with the registration form, as data URLs.
type RegistrationUploads struct {
	Photo     string
	Signature string
	CV        string
	WorkCert  string
	QualCert  string
}

// ValidateRegistration checks the form and its uploads together and returns
// the decoded blobs keyed by kind. Photo, signature and qualification
// certificate are required; CV and work certificate are optional.
func ValidateRegistration(cat *Catalog, info PersonalInfo, uploads RegistrationUploads) (map[DocumentKind]Blob, error) {
	merged := &ValidationError{}
	if err := ValidatePersonalInfo(cat, info); err != nil {
		verr, ok := AsValidationError(err)
		if !ok {
			return nil, err
		}
		for field, msg := range verr.Fields {
			merged.add(field, msg)
		}
	}

	files := []struct {
		kind     DocumentKind
		value    string
		required bool
	}{
		{DocumentPhoto, uploads.Photo, true},
		{DocumentSignature, uploads.Signature, true},
		{DocumentQualCert, uploads.QualCert, true},
		{DocumentCV, uploads.CV, false},
		{DocumentWorkCert, uploads.WorkCert, false},
	}
	blobs := make(map[DocumentKind]Blob, len(files))
	for _, f := range files {
		if !f.required && strings.TrimSpace(f.value) == "" {
			continue
		}
		blob, err := ValidateBlob(f.kind, f.value)
		if err != nil {
			verr, ok := AsValidationError(err)
			if !ok {
				return nil, err
			}
			for field, msg := range verr.Fields {
				merged.add(field, msg)
			}
			continue
		}
		blobs[f.kind] = blob
	}
	if err := merged.orNil(); err != nil {
		return nil, err
	}
	return blobs, nil
}
