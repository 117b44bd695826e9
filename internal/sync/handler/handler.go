package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"carelink/internal/audit"
	"carelink/internal/casestore"
	syncer "carelink/internal/sync"
)

// Handler wires sync endpoints to the cycle runner.
type Handler struct {
	runner *syncer.Runner
	cases  casestore.Store
	events audit.Store
	logger *zap.Logger
}

// New constructs a sync handler with its dependencies.
func New(runner *syncer.Runner, cases casestore.Store, events audit.Store, logger *zap.Logger) *Handler {
	return &Handler{
		runner: runner,
		cases:  cases,
		events: events,
		logger: logger,
	}
}

// Register mounts sync endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sync/run", h.HandleRunAll)
	r.Post("/sync/endpoints/{id}/cycle", h.HandleRunCycle)
	r.Post("/sync/endpoints/{id}/cases/{caseID}/link", h.HandleLinkCase)
	r.Get("/sync/endpoints/{id}/audit", h.HandleListAudit)
}

// HandleRunAll handles POST /sync/run requests. It triggers a poll cycle for
// every enabled endpoint and blocks until all cycles finish.
func (h *Handler) HandleRunAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.runner.RunAll(ctx); err != nil {
		h.logger.Error("manual sync run failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Status: "completed"})
}

// HandleRunCycle handles POST /sync/endpoints/{id}/cycle requests.
func (h *Handler) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	endpointID := chi.URLParam(r, "id")

	err := h.runner.RunCycle(ctx, endpointID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, runResponse{Status: "completed", EndpointID: endpointID})
	case errors.Is(err, syncer.ErrUnknownEndpoint):
		writeError(w, http.StatusNotFound, "unknown_endpoint", endpointID)
	case errors.Is(err, syncer.ErrCycleInProgress):
		writeError(w, http.StatusConflict, "cycle_in_progress", endpointID)
	default:
		h.logger.Error("manual cycle failed",
			zap.String("endpoint_id", endpointID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "cycle_failed", err.Error())
	}
}

// HandleLinkCase handles POST /sync/endpoints/{id}/cases/{caseID}/link. It
// runs the heuristic finder for an unlinked case and reports the candidates;
// a single unambiguous candidate is linked as a side effect.
func (h *Handler) HandleLinkCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	endpointID := chi.URLParam(r, "id")
	caseID := chi.URLParam(r, "caseID")

	runtime, ok := h.runner.Endpoint(endpointID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_endpoint", endpointID)
		return
	}

	record, err := h.cases.Get(ctx, runtime.Endpoint.Domain, caseID)
	if err != nil {
		if errors.Is(err, casestore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_case", caseID)
			return
		}
		h.logger.Error("case lookup failed",
			zap.String("endpoint_id", endpointID),
			zap.String("case_id", caseID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	candidates, err := runtime.Synchronizer.LinkCase(ctx, record)
	if err != nil {
		h.logger.Error("link case failed",
			zap.String("endpoint_id", endpointID),
			zap.String("case_id", caseID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "link_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newLinkResponse(caseID, candidates))
}

// HandleListAudit handles GET /sync/endpoints/{id}/audit requests.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	endpointID := chi.URLParam(r, "id")

	if _, ok := h.runner.Endpoint(endpointID); !ok {
		writeError(w, http.StatusNotFound, "unknown_endpoint", endpointID)
		return
	}

	events, err := h.events.ListByEndpoint(ctx, endpointID)
	if err != nil {
		h.logger.Error("audit listing failed",
			zap.String("endpoint_id", endpointID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	writeJSON(w, http.StatusOK, auditResponse{EndpointID: endpointID, Events: events})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, status, body)
}
