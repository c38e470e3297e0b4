package domain

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validInfo() PersonalInfo {
	return PersonalInfo{
		Union:               "Harit Union",
		Name:                "Asha Kumari",
		FatherName:          "Ramesh Prasad",
		MotherName:          "Sunita Devi",
		DOB:                 "1998-04-12",
		Gender:              "female",
		Email:               "asha@example.com",
		Mobile:              "9876543210",
		Address:             "Ward 4, Patna",
		AadhaarNumber:       "123412341234",
		SelectedPosts:       []string{"Supervisor"},
		DistrictPreferences: []string{"Patna", "Nalanda"},
		HigherEducation:     "Graduate",
		Percentage:          "72.5",
	}
}

func TestValidatePersonalInfoAccepts(t *testing.T) {
	require.NoError(t, ValidatePersonalInfo(DefaultCatalog(), validInfo()))

	info := validInfo()
	info.Union = UnionTirhut
	info.DistrictPreferences = []string{"Muzaffarpur"}
	info.TotalExperience = "3.5"
	require.NoError(t, ValidatePersonalInfo(DefaultCatalog(), info))
}

func TestValidatePersonalInfoFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PersonalInfo)
		field  string
	}{
		{"missing name", func(p *PersonalInfo) { p.Name = " " }, "name"},
		{"bad email", func(p *PersonalInfo) { p.Email = "asha@" }, "email"},
		{"short mobile", func(p *PersonalInfo) { p.Mobile = "98765" }, "mobile"},
		{"alpha aadhaar", func(p *PersonalInfo) { p.AadhaarNumber = "1234abcd1234" }, "aadhaarNumber"},
		{"percentage over 100", func(p *PersonalInfo) { p.Percentage = "101" }, "percentage"},
		{"experience text", func(p *PersonalInfo) { p.TotalExperience = "two" }, "totalExperience"},
		{"no districts", func(p *PersonalInfo) { p.DistrictPreferences = nil }, "districtPreferences"},
		{"district of other union", func(p *PersonalInfo) { p.DistrictPreferences = []string{"Siwan"} }, "districtPreferences"},
		{"unknown post", func(p *PersonalInfo) { p.SelectedPosts = []string{"Pilot"} }, "selectedPosts"},
		{"no posts", func(p *PersonalInfo) { p.SelectedPosts = nil }, "selectedPosts"},
		{"unknown union", func(p *PersonalInfo) { p.Union = "Magadh" }, "union"},
		{"missing union", func(p *PersonalInfo) { p.Union = "" }, "union"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := validInfo()
			tc.mutate(&info)
			err := ValidatePersonalInfo(DefaultCatalog(), info)
			verr, ok := AsValidationError(err)
			require.True(t, ok, "expected validation error, got %v", err)
			require.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestValidatePersonalInfoSharesDistrictListAcrossSpellings(t *testing.T) {
	for _, union := range []Union{"Harit", "Harit Union", "harit union"} {
		info := validInfo()
		info.Union = union
		info.DistrictPreferences = []string{"Buxar"}
		require.NoError(t, ValidatePersonalInfo(DefaultCatalog(), info), "union %q", union)
	}
}

func dataURL(contentType string, size int) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{'x'}, size))
}

func TestValidateBlob(t *testing.T) {
	blob, err := ValidateBlob(DocumentPhoto, dataURL("image/png", 1024))
	require.NoError(t, err)
	require.Equal(t, "image/png", blob.ContentType)
	require.Len(t, blob.Data, 1024)
	require.Equal(t, ".png", blob.Extension())

	_, err = ValidateBlob(DocumentPhoto, dataURL("image/png", 200*1024+1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "200KB")

	_, err = ValidateBlob(DocumentSignature, dataURL("application/pdf", 10))
	require.Error(t, err)

	_, err = ValidateBlob(DocumentIDProof, dataURL("application/pdf", 500*1024))
	require.NoError(t, err)

	_, err = ValidateBlob(DocumentCV, dataURL("image/jpeg", 2*1024*1024+1))
	require.Error(t, err)

	_, err = ValidateBlob(DocumentPhoto, "")
	verr, ok := AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, "Photo is required", verr.Fields["photo"])

	_, err = ValidateBlob(DocumentKind("passport"), dataURL("image/png", 1))
	require.Error(t, err)
}

func TestParseDataURL(t *testing.T) {
	_, err := ParseDataURL("https://example.com/a.png")
	require.Error(t, err)
	_, err = ParseDataURL("data:image/png,plain")
	require.Error(t, err)
	_, err = ParseDataURL("data:image/png;base64,@@@")
	require.Error(t, err)

	blob, err := ParseDataURL(dataURL("IMAGE/PNG", 3))
	require.NoError(t, err)
	require.Equal(t, "image/png", blob.ContentType)
	require.True(t, strings.HasPrefix(blob.DataURL(), "data:image/png;base64,"))
}

func TestValidTransactionNumber(t *testing.T) {
	require.True(t, ValidTransactionNumber("pay_ABC123xyz"))
	require.False(t, ValidTransactionNumber("abc"))
	require.False(t, ValidTransactionNumber("has space 123"))
}
