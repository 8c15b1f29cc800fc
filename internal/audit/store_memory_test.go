package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
	"trustdoc/pkg/testutil"
)

func newEntry(institutionID id.InstitutionID, action Action, ts time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		Action:        action,
		DocumentID:    "TD-2024-001234",
		ActorID:       testutil.TestIDs.ActorID1,
		InstitutionID: institutionID,
		Timestamp:     ts,
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		e := newEntry(testutil.TestIDs.InstitutionID1, ActionVerify, now)
		require.NoError(t, store.Append(context.Background(), e))
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestQueryOrderingWithTimestampTies(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now().UTC()

	// Same timestamp on every entry: insertion sequence must break the tie.
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		e := newEntry(testutil.TestIDs.InstitutionID1, ActionVerify, now)
		require.NoError(t, store.Append(context.Background(), e))
		ids = append(ids, e.ID)
	}

	entries, err := store.Query(context.Background(), Filter{InstitutionID: testutil.TestIDs.InstitutionID1})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID, "entry %d out of insertion order", i)
	}
}

func TestQueryOrderedByTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now().UTC()

	// Append out of chronological order.
	late := newEntry(testutil.TestIDs.InstitutionID1, ActionVerify, base.Add(time.Hour))
	early := newEntry(testutil.TestIDs.InstitutionID1, ActionIssue, base)
	require.NoError(t, store.Append(context.Background(), late))
	require.NoError(t, store.Append(context.Background(), early))

	entries, err := store.Query(context.Background(), Filter{InstitutionID: testutil.TestIDs.InstitutionID1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, early.ID, entries[0].ID)
	assert.Equal(t, late.ID, entries[1].ID)
}

func TestQueryFilters(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now().UTC()

	issue := newEntry(testutil.TestIDs.InstitutionID1, ActionIssue, base)
	verify := newEntry(testutil.TestIDs.InstitutionID1, ActionVerify, base.Add(time.Minute))
	verify.DocumentID = "TD-2024-005678"
	other := newEntry(testutil.TestIDs.InstitutionID2, ActionVerify, base)
	require.NoError(t, store.Append(context.Background(), issue))
	require.NoError(t, store.Append(context.Background(), verify))
	require.NoError(t, store.Append(context.Background(), other))

	byAction, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Action:        ActionIssue,
	})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, issue.ID, byAction[0].ID)

	byDocument, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		DocumentID:    "TD-2024-005678",
	})
	require.NoError(t, err)
	require.Len(t, byDocument, 1)
	assert.Equal(t, verify.ID, byDocument[0].ID)

	byWindow, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		From:          base.Add(30 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, byWindow, 1)
	assert.Equal(t, verify.ID, byWindow[0].ID)
}

func TestQueryPaging(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		e := newEntry(testutil.TestIDs.InstitutionID1, ActionVerify, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Append(context.Background(), e))
	}

	page1, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1, Limit: 4,
	})
	require.NoError(t, err)
	page2, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1, Limit: 4, Offset: 4,
	})
	require.NoError(t, err)
	page3, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1, Limit: 4, Offset: 8,
	})
	require.NoError(t, err)

	assert.Len(t, page1, 4)
	assert.Len(t, page2, 4)
	assert.Len(t, page3, 2)

	beyond, err := store.Query(context.Background(), Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1, Offset: 100,
	})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestQueryRequiresInstitution(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Query(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestAppendWithoutInstitution(t *testing.T) {
	// Verify attempts against unknown identifiers carry no institution; the
	// store must still accept them.
	store := NewInMemoryStore()
	e := newEntry(id.InstitutionID{}, ActionVerify, time.Now().UTC())
	require.NoError(t, store.Append(context.Background(), e))
	assert.Equal(t, int64(1), e.Seq)
}

func TestEntriesImmutableAfterAppend(t *testing.T) {
	store := NewInMemoryStore()
	e := newEntry(testutil.TestIDs.InstitutionID1, ActionVerify, time.Now().UTC())
	e.Metadata = map[string]string{"key": "original"}
	require.NoError(t, store.Append(context.Background(), e))

	// Mutating the caller's entry after append must not change the trail.
	e.Action = ActionRevoke

	entries, err := store.Query(context.Background(), Filter{InstitutionID: testutil.TestIDs.InstitutionID1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionVerify, entries[0].Action)
}

func TestConcurrentAppendsPerInstitution(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now().UTC()

	const goroutines = 50
	result := testutil.RunConcurrent(goroutines, func(idx int) error {
		inst := testutil.TestIDs.InstitutionID1
		if idx%2 == 1 {
			inst = testutil.TestIDs.InstitutionID2
		}
		return store.Append(context.Background(), newEntry(inst, ActionVerify, now))
	})
	require.Equal(t, int32(goroutines), result.Successes)

	for _, inst := range []id.InstitutionID{testutil.TestIDs.InstitutionID1, testutil.TestIDs.InstitutionID2} {
		entries, err := store.Query(context.Background(), Filter{InstitutionID: inst})
		require.NoError(t, err)
		assert.Len(t, entries, goroutines/2)

		seen := make(map[int64]bool)
		for _, e := range entries {
			assert.False(t, seen[e.Seq], "duplicate sequence %d", e.Seq)
			seen[e.Seq] = true
		}
	}
}
