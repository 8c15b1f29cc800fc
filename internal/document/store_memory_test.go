package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustdoc/pkg/testutil"
)

func newTestDocument() *Document {
	return &Document{
		ID:            "TD-2024-001234",
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Aminata Diallo",
		Content:       map[string]string{"discipline": "Informatique"},
		Hash:          "abc123",
		Status:        StatusIssued,
		IssuedBy:      testutil.TestIDs.ActorID1,
		IssuedAt:      time.Now().UTC(),
	}
}

func TestInMemoryStoreCreateDuplicate(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Create(context.Background(), newTestDocument()))

	err := store.Create(context.Background(), newTestDocument())
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestInMemoryStoreFindClones(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Create(context.Background(), newTestDocument()))

	first, err := store.FindByID(context.Background(), "TD-2024-001234")
	require.NoError(t, err)
	first.Content["discipline"] = "tampered"
	first.Status = StatusRevoked

	second, err := store.FindByID(context.Background(), "TD-2024-001234")
	require.NoError(t, err)
	assert.Equal(t, "Informatique", second.Content["discipline"])
	assert.Equal(t, StatusIssued, second.Status)
}

func TestInMemoryStoreFindNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.FindByID(context.Background(), "TD-2099-999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordVerificationConcurrent(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Create(context.Background(), newTestDocument()))

	const goroutines = 64
	result := testutil.RunConcurrent(goroutines, func(int) error {
		_, err := store.RecordVerification(context.Background(), "TD-2024-001234", time.Now().UTC())
		return err
	})
	require.Equal(t, int32(goroutines), result.Successes)

	doc, err := store.FindByID(context.Background(), "TD-2024-001234")
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines), doc.VerificationCount, "no lost increments")
	assert.NotNil(t, doc.LastVerified)
}
