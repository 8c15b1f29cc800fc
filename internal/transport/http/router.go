package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustdoc/internal/audit"
	"trustdoc/internal/document"
	"trustdoc/internal/importer"
	"trustdoc/internal/platform/health"
	"trustdoc/internal/platform/middleware"
	"trustdoc/internal/verification"
	httpErrors "trustdoc/pkg/http-errors"
)

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	documents *document.Service
	engine    *verification.Engine
	imports   *importer.Service
	trail     *audit.Recorder

	// baseURL is embedded into issued verification payloads.
	baseURL string
	logger  *slog.Logger
}

func NewHandler(documents *document.Service, engine *verification.Engine, imports *importer.Service, trail *audit.Recorder, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		documents: documents,
		engine:    engine,
		imports:   imports,
		trail:     trail,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// NewRouter wires all endpoints with middleware. Verification endpoints are
// public; issuance, lifecycle, imports and audit queries require a session.
func NewRouter(h *Handler, sessions *middleware.SessionValidator, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	healthHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public verification portal surface. A session, when presented, still
	// attributes the verify attempt to its subject.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalActor(sessions))

		r.Post("/verify", h.handleVerify)
		r.Get("/verify", h.handleVerifyQuery)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(sessions))

		r.Post("/documents", h.handleIssue)
		r.Get("/documents/{id}", h.handleGetDocument)
		r.Post("/documents/{id}/revoke", h.handleRevoke)
		r.Post("/documents/{id}/suspend", h.handleSuspend)
		r.Post("/documents/{id}/reinstate", h.handleReinstate)

		r.Post("/imports", h.handleSubmitImport)
		r.Get("/imports", h.handleListImports)
		r.Post("/imports/connections", h.handleRegisterConnection)
		r.Get("/imports/connections", h.handleListConnections)
		r.Get("/imports/{id}", h.handleGetImport)
		r.Post("/imports/{id}/cancel", h.handleCancelImport)

		r.Get("/audit", h.handleQueryAudit)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError centralizes domain error translation so every handler produces
// the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status, code := httpErrors.StatusFor(err)
	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError {
		body["error_description"] = err.Error()
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_input",
			"error_description": "malformed request body",
		})
		return false
	}
	return true
}
