package document

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"trustdoc/internal/audit"
	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
	"trustdoc/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	store      *InMemoryStore
	auditStore *audit.InMemoryStore
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.service = NewService(
		s.store,
		NewGenerator(NewRandomSequencer()),
		NewHasher("test-master-secret"),
		audit.NewRecorder(s.auditStore),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) issue() *Document {
	doc, err := s.service.Issue(context.Background(), IssueRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Aminata Diallo",
		Content:       map[string]string{"discipline": "Informatique", "average": "15.5"},
		Actor:         testutil.TestIDs.ActorID1,
		OriginIP:      "203.0.113.7",
	})
	s.Require().NoError(err)
	return doc
}

func (s *ServiceSuite) TestIssue() {
	doc := s.issue()

	s.True(doc.ID.Year() >= 2024)
	s.Equal(StatusIssued, doc.Status)
	s.NotEmpty(doc.Hash)
	s.Equal(testutil.TestIDs.ActorID1, doc.IssuedBy)

	// The stored hash must recompute from the persisted snapshot.
	hasher := NewHasher("test-master-secret")
	s.True(hasher.Verify(doc.ID, doc.Content, doc.InstitutionID, doc.Hash))

	entries, err := s.auditStore.Query(context.Background(), audit.Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionIssue, entries[0].Action)
	s.Equal(doc.ID, entries[0].DocumentID)
	s.Equal("203.0.113.7", entries[0].OriginIP)
}

func (s *ServiceSuite) TestIssueContentSnapshotIsolated() {
	content := map[string]string{"average": "15.5"}
	doc, err := s.service.Issue(context.Background(), IssueRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Aminata Diallo",
		Content:       content,
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().NoError(err)

	// Mutating the caller's map after issuance must not reach the snapshot.
	content["average"] = "19.5"

	stored, err := s.service.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Equal("15.5", stored.Content["average"])
}

func (s *ServiceSuite) TestIssueValidation() {
	_, err := s.service.Issue(context.Background(), IssueRequest{
		TemplateID:  testutil.TestIDs.TemplateID1,
		StudentName: "Aminata Diallo",
		Actor:       testutil.TestIDs.ActorID1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "missing institution")

	_, err = s.service.Issue(context.Background(), IssueRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "   ",
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "blank student name")
}

func (s *ServiceSuite) TestIssueAuditFailureAborts() {
	svc := NewService(
		s.store,
		NewGenerator(NewRandomSequencer()),
		NewHasher("test-master-secret"),
		failingRecorder{},
	)

	_, err := svc.Issue(context.Background(), IssueRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Aminata Diallo",
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditPersistenceFailure))
}

func (s *ServiceSuite) TestRevokeIsTerminal() {
	doc := s.issue()

	err := s.service.Revoke(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", "diploma mill")
	s.Require().NoError(err)

	got, err := s.service.Get(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Equal(StatusRevoked, got.Status)

	// No transition leaves revoked.
	err = s.service.Reinstate(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	err = s.service.Suspend(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ServiceSuite) TestSuspendReinstateCycle() {
	doc := s.issue()

	s.Require().NoError(s.service.Suspend(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", "pending inquiry"))
	got, _ := s.service.Get(context.Background(), doc.ID)
	s.Equal(StatusSuspended, got.Status)

	s.Require().NoError(s.service.Reinstate(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", "inquiry closed"))
	got, _ = s.service.Get(context.Background(), doc.ID)
	s.Equal(StatusIssued, got.Status)

	// Suspended documents can still be revoked outright.
	s.Require().NoError(s.service.Suspend(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", ""))
	s.Require().NoError(s.service.Revoke(context.Background(), doc.ID, testutil.TestIDs.ActorID1, "", ""))
}

func (s *ServiceSuite) TestTransitionAuditMetadata() {
	doc := s.issue()
	s.Require().NoError(s.service.Revoke(context.Background(), doc.ID, testutil.TestIDs.ActorID2, "", "forged seal"))

	entries, err := s.auditStore.Query(context.Background(), audit.Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Action:        audit.ActionRevoke,
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("issued", entries[0].Metadata["from_status"])
	s.Equal("revoked", entries[0].Metadata["to_status"])
	s.Equal("forged seal", entries[0].Metadata["reason"])
	s.Equal(testutil.TestIDs.ActorID2, entries[0].ActorID)
}

func (s *ServiceSuite) TestTransitionNotFound() {
	err := s.service.Revoke(context.Background(), "TD-2099-999999", testutil.TestIDs.ActorID1, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestIssueRetriesOnDuplicate() {
	// A sequencer that repeats its first draw forces one ErrDuplicateID before
	// the retry succeeds with a fresh sequence.
	seq := &collidingSequencer{values: []int{7, 7, 8}}
	svc := NewService(
		s.store,
		NewGenerator(seq),
		NewHasher("test-master-secret"),
		audit.NewRecorder(s.auditStore),
	)

	first, err := svc.Issue(context.Background(), IssueRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Aminata Diallo",
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().NoError(err)

	second, err := svc.Issue(context.Background(), IssueRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		TemplateID:    testutil.TestIDs.TemplateID1,
		StudentName:   "Moussa Traoré",
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)
	s.Equal(8, second.ID.Sequence())
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Entry) error {
	return dErrors.New(dErrors.CodeAuditPersistenceFailure, "audit store unavailable")
}

type collidingSequencer struct {
	mu     sync.Mutex
	values []int
	idx    int
}

func (c *collidingSequencer) Next(_ context.Context, _ id.InstitutionID, _ int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.values[c.idx]
	if c.idx < len(c.values)-1 {
		c.idx++
	}
	return v, nil
}
