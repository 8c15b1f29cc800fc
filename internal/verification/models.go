package verification

import (
	"time"

	"github.com/google/uuid"

	"trustdoc/internal/document"
	id "trustdoc/pkg/domain"
)

// Error codes surfaced in VerificationResult. These are wire-level strings:
// renaming one breaks every consumer reading verification responses.
const (
	CodeMalformedIdentifier = "MalformedIdentifier"
	CodeMalformedPayload    = "MalformedPayload"
	CodeDocumentNotFound    = "DocumentNotFound"
	CodeIntegrityMismatch   = "IntegrityMismatch"
	CodeDocumentRevoked     = "DocumentRevoked"
	CodeDocumentSuspended   = "DocumentSuspended"
)

// Warning codes. Warnings never invalidate a result on their own.
const (
	WarnContactIssuer       = "ContactIssuer"
	WarnMayBecomeValidAgain = "MayBecomeValidAgain"
	WarnUnverifiedIntegrity = "UnverifiedIntegrity"
)

// Request is one verification attempt: either a raw identifier/hash pair or
// the output of decoding a payload. Actor is optional; public portal
// verifications carry a nil actor.
type Request struct {
	Identifier string
	Hash       string
	Actor      id.ActorID
	OriginIP   string
}

// Result is the adjudication outcome. Valid=true implies Errors is empty and
// Document is present; Valid=false implies Document is absent.
type Result struct {
	Valid          bool
	Document       *document.Document
	Errors         []string
	Warnings       []string
	VerificationID uuid.UUID
	VerifiedAt     time.Time
}

func invalidResult(at time.Time, errs []string, warnings ...string) *Result {
	return &Result{
		Valid:          false,
		Errors:         errs,
		Warnings:       warnings,
		VerificationID: uuid.New(),
		VerifiedAt:     at,
	}
}
