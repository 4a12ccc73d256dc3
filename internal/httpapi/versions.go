package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// BootstrapHandler loads the initial working copy of a strategy.
func (h *APIHandler) BootstrapHandler(w http.ResponseWriter, r *http.Request) {
	v, err := h.coord.Bootstrap(r.Context(), r.PathValue("strategyId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"version": v, "canvas": h.canvasResponse(v.ID)})
}

// VersionsHandler lists saved versions, newest first.
func (h *APIHandler) VersionsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.coord.ListVersions(r.Context(), r.PathValue("strategyId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"versions": list})
}

// LoadHandler replaces the working copy of a saved version with its saved graph.
func (h *APIHandler) LoadHandler(w http.ResponseWriter, r *http.Request) {
	strategyID := r.PathValue("strategyId")
	versionID := r.PathValue("versionId")

	list, err := h.coord.ListVersions(r.Context(), strategyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, v := range list {
		if v.ID == versionID {
			h.coord.Load(strategyID, v)
			h.writeJSON(w, http.StatusOK, map[string]any{"version": v, "canvas": h.canvasResponse(v.ID)})
			return
		}
	}
	h.log.Warn("Version not found", zap.String("strategy_id", strategyID), zap.String("version_id", versionID))
	h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "version not found"})
}

// RevertHandler creates a new head version from a saved one and loads it.
func (h *APIHandler) RevertHandler(w http.ResponseWriter, r *http.Request) {
	v, err := h.coord.Revert(r.Context(), r.PathValue("strategyId"), r.PathValue("versionId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"version": v, "canvas": h.canvasResponse(v.ID)})
}
