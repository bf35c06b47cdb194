package hotswap

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AdminHandler is the in-process HTTP surface for operational tooling:
// querying active operations and rollback points, and initiating swaps and
// rollbacks. The core does not listen on its own; mount the handler into the
// host's server.
//
// Routes:
//
//	GET  /operations                     in-flight swap/rollback operations
//	GET  /modules                        registered module ids
//	GET  /modules/{moduleID}             registration info with current version
//	GET  /modules/{moduleID}/rollback-points
//	POST /modules/{moduleID}/swap        body: swapRequest
//	POST /modules/{moduleID}/rollback    body: rollbackRequest
type AdminHandler struct {
	orchestrator *HotSwapOrchestrator
	router       chi.Router
}

// swapRequest is the POST body for initiating a hot swap.
type swapRequest struct {
	TargetVersion ModuleVersion `json:"targetVersion"`
	InitiatedBy   string        `json:"initiatedBy"`
	DryRun        bool          `json:"dryRun"`
}

// rollbackRequest is the POST body for initiating a rollback.
type rollbackRequest struct {
	RollbackPointID string `json:"rollbackPointId"`
}

// swapResponse is the JSON rendering of a SwapResult.
type swapResponse struct {
	ModuleID  string            `json:"moduleId"`
	Operation SwapOperationType `json:"operation"`
	Outcome   SwapOutcome       `json:"outcome"`
	Error     string            `json:"error,omitempty"`
}

// NewAdminHandler builds the operational HTTP handler for an orchestrator.
func NewAdminHandler(orchestrator *HotSwapOrchestrator) *AdminHandler {
	h := &AdminHandler{orchestrator: orchestrator}

	r := chi.NewRouter()
	r.Get("/operations", h.handleOperations)
	r.Get("/modules", h.handleModules)
	r.Route("/modules/{moduleID}", func(r chi.Router) {
		r.Get("/", h.handleModule)
		r.Get("/rollback-points", h.handleRollbackPoints)
		r.Post("/swap", h.handleSwap)
		r.Post("/rollback", h.handleRollback)
	})
	h.router = r

	return h
}

// ServeHTTP implements http.Handler.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *AdminHandler) handleOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.ActiveOperations())
}

func (h *AdminHandler) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.RegisteredModules())
}

func (h *AdminHandler) handleModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	info := h.orchestrator.GetRegistration(moduleID)
	if info == nil {
		writeError(w, http.StatusNotFound, "module not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *AdminHandler) handleRollbackPoints(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	writeJSON(w, http.StatusOK, h.orchestrator.RollbackPoints(moduleID))
}

func (h *AdminHandler) handleSwap(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")

	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.InitiatedBy == "" {
		req.InitiatedBy = "admin-api"
	}

	result := h.orchestrator.PerformHotSwap(r.Context(), moduleID, req.TargetVersion, req.InitiatedBy, req.DryRun)
	writeSwapResult(w, result)
}

func (h *AdminHandler) handleRollback(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := h.orchestrator.Rollback(r.Context(), moduleID, req.RollbackPointID)
	writeSwapResult(w, result)
}

// writeSwapResult maps a SwapResult onto an HTTP status: 200 for success,
// 404 for unknown modules/points, 422 for validation failures, 500 for
// capability failures.
func writeSwapResult(w http.ResponseWriter, result SwapResult) {
	status := http.StatusOK
	switch {
	case result.Success():
	case errors.Is(result.Err, ErrModuleNotFound), errors.Is(result.Err, ErrRollbackPointNotFound):
		status = http.StatusNotFound
	case result.ValidationFailed():
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	resp := swapResponse{
		ModuleID:  result.ModuleID,
		Operation: result.Operation,
		Outcome:   result.Outcome,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
