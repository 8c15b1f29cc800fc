package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustdoc/internal/document"
	"trustdoc/internal/platform/middleware"
	"trustdoc/internal/verification"
	id "trustdoc/pkg/domain"
	"trustdoc/pkg/validation"
)

type issueRequest struct {
	TemplateID  string            `json:"template_id" validate:"required,uuid"`
	StudentName string            `json:"student_name" validate:"required,notblank"`
	Content     map[string]string `json:"content"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req issueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validation.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	templateID, err := id.ParseTemplateID(req.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.documents.Issue(r.Context(), document.IssueRequest{
		InstitutionID: actor.InstitutionID,
		TemplateID:    templateID,
		StudentName:   req.StudentName,
		Content:       req.Content,
		Actor:         actor.ID,
		OriginIP:      middleware.OriginIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := verification.Encode(doc, h.baseURL)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc, payload))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, ""))
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.documents.Revoke)
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.documents.Suspend)
}

func (h *Handler) handleReinstate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.documents.Reinstate)
}

type transitionFunc func(ctx context.Context, docID id.DocumentID, actor id.ActorID, originIP, reason string) error

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, transition transitionFunc) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req transitionRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	if err := transition(r.Context(), docID, actor.ID, middleware.OriginIP(r), req.Reason); err != nil {
		writeError(w, err)
		return
	}

	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, ""))
}
