package httptransport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"trustdoc/internal/importer"
	"trustdoc/internal/platform/middleware"
	id "trustdoc/pkg/domain"
	"trustdoc/pkg/validation"
)

type submitImportRequest struct {
	SourceName string `json:"source_name" validate:"required,notblank"`
	// Data is the raw delimited file content, header row first.
	Data string `json:"data" validate:"required"`
}

func (h *Handler) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req submitImportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validation.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	job, err := h.imports.Submit(r.Context(), importer.SubmitRequest{
		InstitutionID: actor.InstitutionID,
		Source:        importer.NewCSVSource(req.SourceName, strings.NewReader(req.Data)),
		FileSize:      int64(len(req.Data)),
		Actor:         actor.ID,
		OriginIP:      middleware.OriginIP(r),
	})
	if err != nil {
		// An unreadable source still yields a failed job worth returning.
		if job != nil {
			writeJSON(w, http.StatusUnprocessableEntity, toJobResponse(job))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (h *Handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	jobs, err := h.imports.List(r.Context(), actor.InstitutionID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (h *Handler) handleGetImport(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := h.imports.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.imports.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

type registerConnectionRequest struct {
	Name         string `json:"name" validate:"required,notblank"`
	Driver       string `json:"driver" validate:"required,notblank"`
	Host         string `json:"host" validate:"required,notblank"`
	Port         int    `json:"port" validate:"required,min=1,max=65535"`
	DatabaseName string `json:"database_name" validate:"required,notblank"`
	Username     string `json:"username" validate:"required,notblank"`
}

func (h *Handler) handleRegisterConnection(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req registerConnectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validation.Validate(req); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.imports.RegisterConnection(r.Context(), importer.ConnectionRequest{
		InstitutionID: actor.InstitutionID,
		Name:          req.Name,
		Driver:        req.Driver,
		Host:          req.Host,
		Port:          req.Port,
		DatabaseName:  req.DatabaseName,
		Username:      req.Username,
		Actor:         actor.ID,
		OriginIP:      middleware.OriginIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConnectionResponse(conn))
}

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	conns, err := h.imports.ListConnections(r.Context(), actor.InstitutionID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]connectionResponse, 0, len(conns))
	for i := range conns {
		out = append(out, toConnectionResponse(&conns[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}
