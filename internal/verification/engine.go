package verification

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trustdoc/internal/audit"
	"trustdoc/internal/document"
	vmetrics "trustdoc/internal/verification/metrics"
	id "trustdoc/pkg/domain"
)

var tracer = otel.Tracer("trustdoc/internal/verification")

// Registry is the document lookup surface the engine needs.
type Registry interface {
	FindByID(ctx context.Context, docID id.DocumentID) (*document.Document, error)
	RecordVerification(ctx context.Context, docID id.DocumentID, at time.Time) (int64, error)
}

// Recorder is the audit write path. A failed append aborts the verification:
// an unrecorded verify attempt is a compliance gap.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Engine adjudicates verification requests against the document registry.
// The engine itself is stateless; every call produces exactly one Result and
// exactly one audit entry. Requests for distinct documents run fully in
// parallel; the registry serializes counter updates per document.
type Engine struct {
	registry Registry
	hasher   *document.Hasher
	recorder Recorder
	logger   *slog.Logger
	metrics  *vmetrics.Metrics
	now      func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *vmetrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(registry Registry, hasher *document.Hasher, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		hasher:   hasher,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VerifyPayload decodes a raw QR-decoded string and adjudicates it. A string
// matching none of the accepted payload shapes yields an invalid result with
// MalformedPayload, never a hard failure.
func (e *Engine) VerifyPayload(ctx context.Context, raw string, actor id.ActorID, originIP string) (*Result, error) {
	payload, err := Decode(raw)
	if err != nil {
		result := invalidResult(e.now().UTC(), []string{CodeMalformedPayload})
		return e.finish(ctx, result, audit.Entry{
			Action:   audit.ActionVerify,
			ActorID:  actor,
			OriginIP: originIP,
			Metadata: map[string]string{"error": CodeMalformedPayload},
		}, "malformed")
	}

	return e.Verify(ctx, Request{
		Identifier: payload.ID,
		Hash:       payload.Hash,
		Actor:      actor,
		OriginIP:   originIP,
	})
}

// Verify runs the adjudication state machine for one request.
func (e *Engine) Verify(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "verification.verify",
		trace.WithAttributes(attribute.String("document.id", req.Identifier)))
	defer span.End()

	start := e.now()
	result, err := e.adjudicate(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome := "valid"
	if !result.Valid {
		outcome = result.Errors[0]
	}
	span.SetAttributes(attribute.Bool("verification.valid", result.Valid),
		attribute.String("verification.outcome", outcome))
	e.metrics.ObserveDuration(e.now().Sub(start).Seconds())

	return result, nil
}

func (e *Engine) adjudicate(ctx context.Context, req Request) (*Result, error) {
	now := e.now().UTC()

	if !id.IsValidDocumentID(req.Identifier) {
		result := invalidResult(now, []string{CodeMalformedIdentifier})
		return e.finish(ctx, result, audit.Entry{
			Action:   audit.ActionVerify,
			ActorID:  req.Actor,
			OriginIP: req.OriginIP,
			Metadata: map[string]string{"error": CodeMalformedIdentifier, "input": truncate(req.Identifier, 64)},
		}, "malformed")
	}

	docID := id.DocumentID(req.Identifier)
	doc, err := e.registry.FindByID(ctx, docID)
	if err != nil {
		if !errors.Is(err, document.ErrNotFound) {
			return nil, err
		}
		result := invalidResult(now, []string{CodeDocumentNotFound})
		return e.finish(ctx, result, audit.Entry{
			Action:     audit.ActionVerify,
			DocumentID: docID,
			ActorID:    req.Actor,
			OriginIP:   req.OriginIP,
			Metadata:   map[string]string{"error": CodeDocumentNotFound},
		}, "not_found")
	}

	entry := audit.Entry{
		Action:        audit.ActionVerify,
		DocumentID:    doc.ID,
		ActorID:       req.Actor,
		InstitutionID: doc.InstitutionID,
		OriginIP:      req.OriginIP,
	}

	// A supplied hash that does not recompute is a tampering signal, distinct
	// from not-found.
	if req.Hash != "" && !e.hasher.Verify(doc.ID, doc.Content, doc.InstitutionID, req.Hash) {
		result := invalidResult(now, []string{CodeIntegrityMismatch})
		entry.Metadata = map[string]string{"error": CodeIntegrityMismatch}
		return e.finish(ctx, result, entry, "integrity_mismatch")
	}

	switch doc.Status {
	case document.StatusRevoked:
		result := invalidResult(now, []string{CodeDocumentRevoked}, WarnContactIssuer)
		entry.Metadata = map[string]string{"error": CodeDocumentRevoked}
		return e.finish(ctx, result, entry, "revoked")

	case document.StatusSuspended:
		result := invalidResult(now, []string{CodeDocumentSuspended}, WarnMayBecomeValidAgain)
		entry.Metadata = map[string]string{"error": CodeDocumentSuspended}
		return e.finish(ctx, result, entry, "suspended")
	}

	count, err := e.registry.RecordVerification(ctx, doc.ID, now)
	if err != nil {
		return nil, err
	}
	doc.VerificationCount = count
	doc.LastVerified = &now

	result := &Result{
		Valid:          true,
		Document:       doc,
		VerificationID: uuid.New(),
		VerifiedAt:     now,
	}
	// Identifier-only lookups cannot confirm content authenticity.
	if req.Hash == "" {
		result.Warnings = append(result.Warnings, WarnUnverifiedIntegrity)
	}

	entry.Metadata = map[string]string{"verification_count": strconv.FormatInt(count, 10)}
	return e.finish(ctx, result, entry, "valid")
}

// finish appends the audit entry and records metrics. The audit append is not
// best-effort: its failure discards the result and surfaces an error.
func (e *Engine) finish(ctx context.Context, result *Result, entry audit.Entry, outcome string) (*Result, error) {
	entry.Metadata["verification_id"] = result.VerificationID.String()
	if err := e.recorder.Record(ctx, entry); err != nil {
		if e.logger != nil {
			e.logger.Error("audit append failed during verification",
				"document_id", entry.DocumentID,
				"error", err,
			)
		}
		return nil, err
	}
	e.metrics.IncOutcome(outcome)
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
