package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobbygour30/admitcard/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestUpdatePersonalInfoMerges(t *testing.T) {
	store := NewStore()
	store.UpdatePersonalInfo(PersonalInfoPatch{Name: ptr("Asha")})
	data := store.UpdatePersonalInfo(PersonalInfoPatch{Email: ptr("asha@example.com")})

	require.Equal(t, "Asha", data.PersonalInfo.Name)
	require.Equal(t, "asha@example.com", data.PersonalInfo.Email)
}

func TestUpdatePersonalInfoNormalizesUnion(t *testing.T) {
	store := NewStore()
	data := store.UpdatePersonalInfo(PersonalInfoPatch{Union: ptr(domain.Union("harit union"))})
	require.Equal(t, domain.UnionHarit, data.PersonalInfo.Union)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	store := NewStore()
	first := store.UpdatePersonalInfo(PersonalInfoPatch{DistrictPreferences: []string{"Patna"}})
	_, err := store.UpdateDocuments(domain.DocumentIDProof, "gs://bucket/id.png")
	require.NoError(t, err)

	first.PersonalInfo.DistrictPreferences[0] = "Mutated"
	second := store.UpdatePersonalInfo(PersonalInfoPatch{DistrictPreferences: []string{"Patna", "Buxar"}})

	require.Nil(t, first.Documents, "earlier snapshot must not see later document")
	require.Equal(t, []string{"Patna", "Buxar"}, second.PersonalInfo.DistrictPreferences)

	second.Documents[domain.DocumentIDProof] = "changed"
	require.Equal(t, "gs://bucket/id.png", store.Snapshot().Documents[domain.DocumentIDProof])
}

func TestOptionalDocumentsCanBeCleared(t *testing.T) {
	store := NewStore()
	url := "gs://bucket/cv.pdf"
	data := store.UpdateCV(&url)
	url = "changed"
	require.Equal(t, "gs://bucket/cv.pdf", *data.CV)

	data = store.UpdateCV(nil)
	require.Nil(t, data.CV)

	data = store.UpdateWorkCert(ptr("w"))
	data = store.UpdateQualCert(ptr("q"))
	require.Equal(t, "w", *data.WorkCert)
	require.Equal(t, "q", *data.QualCert)

	data = store.UpdatePhoto("p")
	data = store.UpdateSignature("s")
	require.Equal(t, "p", data.Photo)
	require.Equal(t, "s", data.Signature)
}

func TestUpdateDocumentsRejectsUnknownKinds(t *testing.T) {
	store := NewStore()
	_, err := store.UpdateDocuments(domain.DocumentPhoto, "x")
	require.Error(t, err)
	require.Empty(t, store.Snapshot().Documents)

	data, err := store.UpdateDocuments(domain.DocumentAddressProof, "addr")
	require.NoError(t, err)
	require.Equal(t, "addr", data.Documents[domain.DocumentAddressProof])
}

func TestUpdatePaymentStatusSetsBothFields(t *testing.T) {
	store := NewStore()
	data := store.UpdatePaymentStatus(true, " pay_123456 ")
	require.True(t, data.PaymentStatus)
	require.Equal(t, "pay_123456", data.TransactionNumber)
}

func TestGenerateApplicationNumber(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := NewStore(WithRandom(func(int) int { return 23456 }), WithClock(func() time.Time { return now }))

	value := store.GenerateApplicationNumber()
	require.Equal(t, "CBT123456", value)
	snap := store.Snapshot()
	require.Equal(t, value, snap.ApplicationNumber)
	require.Equal(t, now, snap.UpdatedAt)
}

func TestRecordAllocationAndReset(t *testing.T) {
	store := NewStore()
	data := store.RecordAllocation("DAV Public School", "A (9:00 AM - 10:00 AM, 12-06-2025)")
	require.Equal(t, "DAV Public School", data.ExamCenter)
	require.Equal(t, "A (9:00 AM - 10:00 AM, 12-06-2025)", data.ExamShift)

	data = store.Reset()
	require.Empty(t, data.ExamCenter)
}

func TestPatchFromCopiesEverything(t *testing.T) {
	info := domain.PersonalInfo{Union: "Tirhut Union", Name: "Ravi", SelectedPosts: []string{"Supervisor"}, DistrictPreferences: []string{"Siwan"}}
	store := NewStore()
	data := store.UpdatePersonalInfo(PatchFrom(info))
	require.Equal(t, domain.UnionTirhut, data.PersonalInfo.Union)
	require.Equal(t, "Ravi", data.PersonalInfo.Name)
	require.Equal(t, []string{"Siwan"}, data.PersonalInfo.DistrictPreferences)
}
