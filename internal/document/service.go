package document

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"trustdoc/internal/audit"
	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

// createRetries bounds identifier re-draws when the random sequencer collides.
const createRetries = 3

// Recorder is the audit write path. Append failures abort the calling
// operation.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service mints and manages document lifecycles. Issuance binds the content
// snapshot to a fresh identifier through the integrity hash; lifecycle
// transitions are validated against the status model and always audited.
type Service struct {
	store     Store
	generator *Generator
	hasher    *Hasher
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, generator *Generator, hasher *Hasher, recorder Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		generator: generator,
		hasher:    hasher,
		recorder:  recorder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueRequest carries everything needed to mint a document. Actor identity
// is explicit; there is no ambient session state.
type IssueRequest struct {
	InstitutionID id.InstitutionID
	TemplateID    id.TemplateID
	StudentName   string
	Content       map[string]string
	Actor         id.ActorID
	OriginIP      string
}

func (r *IssueRequest) validate() error {
	if r.InstitutionID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "institution ID required")
	}
	if r.Actor.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "actor ID required")
	}
	if strings.TrimSpace(r.StudentName) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "student name required")
	}
	return nil
}

// Issue mints an identifier, snapshots the content, computes the integrity
// hash and persists the document. The issuance is recorded in the audit
// trail; if that record cannot be persisted the call fails.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Document, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	content := maps.Clone(req.Content)
	if content == nil {
		content = map[string]string{}
	}

	var doc *Document
	for attempt := 0; ; attempt++ {
		docID, err := s.generator.NewID(ctx, req.InstitutionID, now.Year())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate document identifier")
		}

		doc = &Document{
			ID:            docID,
			InstitutionID: req.InstitutionID,
			TemplateID:    req.TemplateID,
			StudentName:   strings.TrimSpace(req.StudentName),
			Content:       content,
			Hash:          s.hasher.Compute(docID, content, req.InstitutionID),
			Status:        StatusIssued,
			IssuedBy:      req.Actor,
			IssuedAt:      now,
		}

		err = s.store.Create(ctx, doc)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateID) && attempt < createRetries {
			continue
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist document")
	}

	err := s.recorder.Record(ctx, audit.Entry{
		Action:        audit.ActionIssue,
		DocumentID:    doc.ID,
		ActorID:       req.Actor,
		InstitutionID: req.InstitutionID,
		OriginIP:      req.OriginIP,
		Metadata: map[string]string{
			"template_id":  doc.TemplateID.String(),
			"student_name": doc.StudentName,
		},
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("document issued",
			"document_id", doc.ID,
			"institution_id", doc.InstitutionID,
		)
	}
	return doc, nil
}

// Get loads a document by identifier.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*Document, error) {
	return s.store.FindByID(ctx, docID)
}

// Revoke permanently invalidates a document. Terminal: a revoked document
// never becomes valid again.
func (s *Service) Revoke(ctx context.Context, docID id.DocumentID, actor id.ActorID, originIP, reason string) error {
	return s.transition(ctx, docID, StatusRevoked, audit.ActionRevoke, actor, originIP, reason)
}

// Suspend temporarily invalidates a document.
func (s *Service) Suspend(ctx context.Context, docID id.DocumentID, actor id.ActorID, originIP, reason string) error {
	return s.transition(ctx, docID, StatusSuspended, audit.ActionSuspend, actor, originIP, reason)
}

// Reinstate returns a suspended document to issued.
func (s *Service) Reinstate(ctx context.Context, docID id.DocumentID, actor id.ActorID, originIP, reason string) error {
	return s.transition(ctx, docID, StatusIssued, audit.ActionModify, actor, originIP, reason)
}

func (s *Service) transition(ctx context.Context, docID id.DocumentID, to Status, action audit.Action, actor id.ActorID, originIP, reason string) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "actor ID required")
	}

	doc, err := s.store.FindByID(ctx, docID)
	if err != nil {
		return err
	}

	if !doc.Status.CanTransition(to) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot transition document from "+string(doc.Status)+" to "+string(to))
	}

	if err := s.store.UpdateStatus(ctx, docID, to); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document status")
	}

	metadata := map[string]string{
		"from_status": string(doc.Status),
		"to_status":   string(to),
	}
	if reason != "" {
		metadata["reason"] = reason
	}

	return s.recorder.Record(ctx, audit.Entry{
		Action:        action,
		DocumentID:    docID,
		ActorID:       actor,
		InstitutionID: doc.InstitutionID,
		OriginIP:      originIP,
		Metadata:      metadata,
	})
}
