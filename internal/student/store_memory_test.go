package student

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustdoc/pkg/testutil"
)

func testStudent(matricule string) *Student {
	return &Student{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Matricule:     matricule,
		FirstName:     "Aminata",
		LastName:      "Diallo",
		BirthDate:     "2001-03-14",
		BirthPlace:    "Dakar",
		Discipline:    "Informatique",
		AcademicYear:  "2023-2024",
		Average:       15.5,
		Grade:         GradeFor(15.5),
		Status:        StatusActive,
	}
}

func TestUpsertAssignsIdentity(t *testing.T) {
	store := NewInMemoryStore()
	st := testStudent("MAT-001")

	require.NoError(t, store.Upsert(context.Background(), st))
	assert.False(t, st.ID.IsNil())
	assert.False(t, st.CreatedAt.IsZero())
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestUpsertIdempotentByMatricule(t *testing.T) {
	store := NewInMemoryStore()
	first := testStudent("MAT-001")
	require.NoError(t, store.Upsert(context.Background(), first))

	// A re-import of the same matricule updates in place: same identity,
	// fresh field values.
	second := testStudent("MAT-001")
	second.Average = 17.2
	second.Grade = GradeFor(17.2)
	require.NoError(t, store.Upsert(context.Background(), second))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := store.FindByMatricule(context.Background(), testutil.TestIDs.InstitutionID1, "MAT-001")
	require.NoError(t, err)
	assert.Equal(t, 17.2, got.Average)
	assert.Equal(t, GradeTresBien, got.Grade)

	count, err := store.CountByInstitution(context.Background(), testutil.TestIDs.InstitutionID1)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-import never duplicates a student")
}

func TestMatriculeScopedPerInstitution(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), testStudent("MAT-001")))

	other := testStudent("MAT-001")
	other.InstitutionID = testutil.TestIDs.InstitutionID2
	require.NoError(t, store.Upsert(context.Background(), other))

	count1, _ := store.CountByInstitution(context.Background(), testutil.TestIDs.InstitutionID1)
	count2, _ := store.CountByInstitution(context.Background(), testutil.TestIDs.InstitutionID2)
	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestFindByMatriculeNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.FindByMatricule(context.Background(), testutil.TestIDs.InstitutionID1, "MAT-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByInstitutionSorted(t *testing.T) {
	store := NewInMemoryStore()
	for _, m := range []string{"MAT-003", "MAT-001", "MAT-002"} {
		require.NoError(t, store.Upsert(context.Background(), testStudent(m)))
	}

	students, err := store.ListByInstitution(context.Background(), testutil.TestIDs.InstitutionID1)
	require.NoError(t, err)
	require.Len(t, students, 3)
	assert.Equal(t, "MAT-001", students[0].Matricule)
	assert.Equal(t, "MAT-002", students[1].Matricule)
	assert.Equal(t, "MAT-003", students[2].Matricule)
}
