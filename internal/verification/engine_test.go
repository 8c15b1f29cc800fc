package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustdoc/internal/audit"
	"trustdoc/internal/document"
	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
	"trustdoc/pkg/testutil"
)

type EngineSuite struct {
	suite.Suite
	docs       *document.InMemoryStore
	auditStore *audit.InMemoryStore
	hasher     *document.Hasher
	engine     *Engine
}

func (s *EngineSuite) SetupTest() {
	s.docs = document.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.hasher = document.NewHasher("test-master-secret")
	s.engine = NewEngine(s.docs, s.hasher, audit.NewRecorder(s.auditStore))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

// seed stores an issued document with a genuine integrity hash.
func (s *EngineSuite) seed(docID id.DocumentID, status document.Status) *document.Document {
	content := map[string]string{"discipline": "Informatique", "average": "15.5"}
	doc := &document.Document{
		ID:            docID,
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Aminata Diallo",
		Content:       content,
		Hash:          s.hasher.Compute(docID, content, testutil.TestIDs.InstitutionID1),
		Status:        status,
		IssuedBy:      testutil.TestIDs.ActorID1,
		IssuedAt:      time.Now().UTC(),
	}
	s.Require().NoError(s.docs.Create(context.Background(), doc))
	return doc
}

func (s *EngineSuite) verify(identifier, hash string) *Result {
	result, err := s.engine.Verify(context.Background(), Request{
		Identifier: identifier,
		Hash:       hash,
		Actor:      testutil.TestIDs.ActorID2,
		OriginIP:   "198.51.100.9",
	})
	s.Require().NoError(err)
	return result
}

func (s *EngineSuite) auditEntries(institutionID id.InstitutionID) []audit.Entry {
	entries, err := s.auditStore.Query(context.Background(), audit.Filter{InstitutionID: institutionID})
	s.Require().NoError(err)
	return entries
}

func (s *EngineSuite) TestValidDocument() {
	doc := s.seed("TD-2024-001234", document.StatusIssued)

	result := s.verify("TD-2024-001234", doc.Hash)

	s.True(result.Valid)
	s.Empty(result.Errors)
	s.Empty(result.Warnings)
	s.Require().NotNil(result.Document)
	s.Equal(int64(1), result.Document.VerificationCount)
	s.NotEqual("00000000-0000-0000-0000-000000000000", result.VerificationID.String())

	entries := s.auditEntries(testutil.TestIDs.InstitutionID1)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionVerify, entries[0].Action)
	s.Equal("1", entries[0].Metadata["verification_count"])
	s.Equal(result.VerificationID.String(), entries[0].Metadata["verification_id"])
}

func (s *EngineSuite) TestRepeatVerificationIncrementsCounter() {
	doc := s.seed("TD-2024-001234", document.StatusIssued)

	s.verify("TD-2024-001234", doc.Hash)
	result := s.verify("TD-2024-001234", doc.Hash)

	s.Equal(int64(2), result.Document.VerificationCount)
	s.Len(s.auditEntries(testutil.TestIDs.InstitutionID1), 2, "one audit entry per attempt")
}

func (s *EngineSuite) TestIdentifierOnlyLookup() {
	s.seed("TD-2024-001234", document.StatusIssued)

	result := s.verify("TD-2024-001234", "")

	s.True(result.Valid)
	s.Equal([]string{WarnUnverifiedIntegrity}, result.Warnings)
	s.Equal(int64(1), result.Document.VerificationCount, "identifier-only lookups still count")
}

func (s *EngineSuite) TestIntegrityMismatch() {
	s.seed("TD-2024-001234", document.StatusIssued)

	result := s.verify("TD-2024-001234", "0000000000000000000000000000000000000000000000000000000000000000")

	s.False(result.Valid)
	s.Equal([]string{CodeIntegrityMismatch}, result.Errors)
	s.Nil(result.Document, "invalid results never leak the document")

	// Tampering attempts do not advance the verification counter.
	doc, err := s.docs.FindByID(context.Background(), "TD-2024-001234")
	s.Require().NoError(err)
	s.Equal(int64(0), doc.VerificationCount)
}

func (s *EngineSuite) TestRevokedDocument() {
	doc := s.seed("TD-2024-001234", document.StatusRevoked)

	result := s.verify("TD-2024-001234", doc.Hash)

	s.False(result.Valid)
	s.Equal([]string{CodeDocumentRevoked}, result.Errors)
	s.Equal([]string{WarnContactIssuer}, result.Warnings)
}

func (s *EngineSuite) TestSuspendedDocument() {
	doc := s.seed("TD-2024-001234", document.StatusSuspended)

	result := s.verify("TD-2024-001234", doc.Hash)

	s.False(result.Valid)
	s.Equal([]string{CodeDocumentSuspended}, result.Errors)
	s.Equal([]string{WarnMayBecomeValidAgain}, result.Warnings)
}

func (s *EngineSuite) TestDocumentNotFound() {
	result := s.verify("TD-2099-999999", "")

	s.False(result.Valid)
	s.Equal([]string{CodeDocumentNotFound}, result.Errors)

	// The attempt is still recorded, bucketed without an institution.
	entries := s.auditEntries(testutil.TestIDs.InstitutionID1)
	s.Empty(entries)
}

func (s *EngineSuite) TestMalformedIdentifier() {
	result := s.verify("DROP TABLE documents", "")

	s.False(result.Valid)
	s.Equal([]string{CodeMalformedIdentifier}, result.Errors)
}

func (s *EngineSuite) TestVerifyPayloadJSON() {
	doc := s.seed("TD-2024-001234", document.StatusIssued)
	raw, err := Encode(doc, "https://verify.trustdoc.africa")
	s.Require().NoError(err)

	result, err := s.engine.VerifyPayload(context.Background(), raw, testutil.TestIDs.ActorID2, "198.51.100.9")
	s.Require().NoError(err)
	s.True(result.Valid)
}

func (s *EngineSuite) TestVerifyPayloadJunk() {
	result, err := s.engine.VerifyPayload(context.Background(), "!!! not a payload !!!", testutil.TestIDs.ActorID2, "")
	s.Require().NoError(err, "junk input is an invalid result, not a hard failure")
	s.False(result.Valid)
	s.Equal([]string{CodeMalformedPayload}, result.Errors)
}

func (s *EngineSuite) TestAuditFailureAbortsVerification() {
	doc := s.seed("TD-2024-001234", document.StatusIssued)

	engine := NewEngine(s.docs, s.hasher, failingRecorder{})
	_, err := engine.Verify(context.Background(), Request{Identifier: "TD-2024-001234", Hash: doc.Hash})

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditPersistenceFailure))
}

func (s *EngineSuite) TestConcurrentVerificationsLoseNoIncrements() {
	doc := s.seed("TD-2024-001234", document.StatusIssued)

	const goroutines = 32
	result := testutil.RunConcurrent(goroutines, func(int) error {
		_, err := s.engine.Verify(context.Background(), Request{
			Identifier: "TD-2024-001234",
			Hash:       doc.Hash,
		})
		return err
	})
	s.Equal(int32(goroutines), result.Successes)

	stored, err := s.docs.FindByID(context.Background(), "TD-2024-001234")
	s.Require().NoError(err)
	s.Equal(int64(goroutines), stored.VerificationCount)
	s.Len(s.auditEntries(testutil.TestIDs.InstitutionID1), goroutines)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Entry) error {
	return dErrors.New(dErrors.CodeAuditPersistenceFailure, "audit store unavailable")
}
