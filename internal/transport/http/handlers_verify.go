package httptransport

import (
	"net/http"

	"trustdoc/internal/platform/middleware"
	"trustdoc/internal/verification"
	id "trustdoc/pkg/domain"
)

type verifyRequest struct {
	// Payload is the raw QR-decoded string: JSON payload, verification URL
	// or bare identifier. Identifier/Hash are the pre-split form; Payload
	// wins when both are present.
	Payload    string `json:"payload"`
	Identifier string `json:"identifier"`
	Hash       string `json:"hash"`
}

// handleVerify adjudicates a verification request submitted by the public
// portal. No session is required; the actor is recorded as anonymous.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	actor := publicActor(r)
	originIP := middleware.OriginIP(r)

	var (
		result *verification.Result
		err    error
	)
	if req.Payload != "" {
		result, err = h.engine.VerifyPayload(r.Context(), req.Payload, actor, originIP)
	} else {
		result, err = h.engine.Verify(r.Context(), verification.Request{
			Identifier: req.Identifier,
			Hash:       req.Hash,
			Actor:      actor,
			OriginIP:   originIP,
		})
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toVerificationResponse(result))
}

// handleVerifyQuery serves the link form embedded in QR payloads:
// GET /verify?id=TD-2024-001234&hash=...
func (h *Handler) handleVerifyQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.engine.Verify(r.Context(), verification.Request{
		Identifier: q.Get("id"),
		Hash:       q.Get("hash"),
		Actor:      publicActor(r),
		OriginIP:   middleware.OriginIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toVerificationResponse(result))
}

// publicActor resolves the actor for unauthenticated verification requests.
// A session, when present, attributes the verify to its subject; otherwise
// the entry carries a nil actor.
func publicActor(r *http.Request) id.ActorID {
	if actor, ok := middleware.GetActor(r.Context()); ok {
		return actor.ID
	}
	return id.ActorID{}
}
