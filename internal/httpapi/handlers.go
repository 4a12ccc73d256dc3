package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"strategy-builder-go/internal/blocks"
	"strategy-builder-go/internal/canvas"
	"strategy-builder-go/internal/coordinator"
	"strategy-builder-go/internal/models"
	"strategy-builder-go/internal/session"
	"strategy-builder-go/internal/validation"
	"strategy-builder-go/internal/versions"
)

// StepRecorder records onboarding progress.
type StepRecorder interface {
	MarkStep(stepID, status string, properties map[string]any)
}

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log        *zap.Logger
	store      *canvas.Store
	coord      *coordinator.Coordinator
	catalog    *blocks.Catalog
	onboarding StepRecorder
	upgrader   websocket.Upgrader
	now        func() time.Time
}

// NewAPIHandler creates a new APIHandler. onboarding may be nil, in which
// case the onboarding endpoint is not registered.
func NewAPIHandler(log *zap.Logger, store *canvas.Store, coord *coordinator.Coordinator, catalog *blocks.Catalog, onboarding StepRecorder) *APIHandler {
	return &APIHandler{
		log:        log.Named("api"),
		store:      store,
		coord:      coord,
		catalog:    catalog,
		onboarding: onboarding,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// CanvasResponse is everything the designer renders for one version.
type CanvasResponse struct {
	canvas.View
	Status       string                                    `json:"status"`
	IssuesByNode map[string][]models.CanvasValidationIssue `json:"issuesByNode"`
	GlobalIssues []models.CanvasValidationIssue            `json:"globalIssues"`
	Saving       bool                                      `json:"saving"`
	Notice       string                                    `json:"notice,omitempty"`
	RevertingID  string                                    `json:"revertingId,omitempty"`
}

func (h *APIHandler) canvasResponse(versionID string) CanvasResponse {
	view, _ := h.store.View(versionID)
	issues := view.Validation.Issues()
	notice, _ := h.coord.Notice()
	return CanvasResponse{
		View:         view,
		Status:       validation.Summary(view.Validation),
		IssuesByNode: models.IssuesByNode(issues),
		GlobalIssues: models.GlobalIssues(issues),
		Saving:       h.coord.Saving(versionID),
		Notice:       notice,
		RevertingID:  h.coord.RevertingID(),
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", zap.Error(err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrMissingSession):
		return http.StatusUnauthorized
	case errors.Is(err, coordinator.ErrNoStrategy), errors.Is(err, coordinator.ErrNoVersions):
		return http.StatusNotFound
	case errors.Is(err, blocks.ErrUnknownBlock):
		return http.StatusBadRequest
	case errors.Is(err, versions.ErrRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v and answers 400 on failure.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// HealthHandler answers liveness probes.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// BlocksHandler returns the block catalog.
func (h *APIHandler) BlocksHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"signalTypes": h.catalog.SignalTypes,
		"blocks":      h.catalog.Definitions(),
	})
}

// ActiveCanvasHandler returns the active working copy.
func (h *APIHandler) ActiveCanvasHandler(w http.ResponseWriter, r *http.Request) {
	versionID := h.store.ActiveVersionID()
	if versionID == "" {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active version"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// CanvasHandler returns one working copy. Unknown ids render as an empty graph.
func (h *APIHandler) CanvasHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.canvasResponse(r.PathValue("versionId")))
}

type addBlockRequest struct {
	Kind     string          `json:"kind"`
	Position models.Position `json:"position"`
}

// AddBlockHandler drops a block from the catalog onto the canvas.
func (h *APIHandler) AddBlockHandler(w http.ResponseWriter, r *http.Request) {
	var req addBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	node, err := h.catalog.NewNode(req.Kind, req.Position)
	if err != nil {
		h.writeError(w, err)
		return
	}
	versionID := r.PathValue("versionId")
	h.store.UpsertNode(versionID, node)
	h.writeJSON(w, http.StatusCreated, map[string]any{"node": node, "canvas": h.canvasResponse(versionID)})
}

// UpsertNodeHandler merges the posted node into the graph.
func (h *APIHandler) UpsertNodeHandler(w http.ResponseWriter, r *http.Request) {
	var node models.StrategyNode
	if !h.decode(w, r, &node) {
		return
	}
	node.ID = r.PathValue("nodeId")
	versionID := r.PathValue("versionId")
	h.store.UpsertNode(versionID, node)
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

type nodeUpdateRequest struct {
	Label    *string              `json:"label"`
	Type     *string              `json:"type"`
	Position *models.Position     `json:"position"`
	Metadata *models.NodeMetadata `json:"metadata"`
}

// UpdateNodeHandler overwrites the fields present in the body.
func (h *APIHandler) UpdateNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req nodeUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	versionID := r.PathValue("versionId")
	h.store.UpdateNode(versionID, r.PathValue("nodeId"), canvas.NodeUpdate{
		Label:    req.Label,
		Type:     req.Type,
		Position: req.Position,
		Metadata: req.Metadata,
	})
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// RemoveNodeHandler deletes a node and its edges.
func (h *APIHandler) RemoveNodeHandler(w http.ResponseWriter, r *http.Request) {
	versionID := r.PathValue("versionId")
	h.store.RemoveNode(versionID, r.PathValue("nodeId"))
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// MoveNodeHandler sets a node position after a drag.
func (h *APIHandler) MoveNodeHandler(w http.ResponseWriter, r *http.Request) {
	var pos models.Position
	if !h.decode(w, r, &pos) {
		return
	}
	versionID := r.PathValue("versionId")
	h.store.MoveNode(versionID, r.PathValue("nodeId"), pos)
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// ParameterHandler sets one parameter from the inspector.
func (h *APIHandler) ParameterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value any `json:"value"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	versionID := r.PathValue("versionId")
	h.store.UpdateNodeParameter(versionID, r.PathValue("nodeId"), r.PathValue("key"), req.Value)
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

type connectRequest struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"sourceHandle"`
	TargetHandle *string `json:"targetHandle"`
}

// ConnectHandler adds an edge unless the two nodes are already connected.
func (h *APIHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and target are required"})
		return
	}
	versionID := r.PathValue("versionId")
	edge := models.StrategyEdge{
		ID:           fmt.Sprintf("edge-%s-%s-%d", req.Source, req.Target, h.now().UnixMilli()),
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
	}
	if !h.store.ConnectIfAbsent(versionID, edge) {
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "nodes are already connected"})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"edge": edge, "canvas": h.canvasResponse(versionID)})
}

// RemoveEdgeHandler deletes an edge.
func (h *APIHandler) RemoveEdgeHandler(w http.ResponseWriter, r *http.Request) {
	versionID := r.PathValue("versionId")
	h.store.RemoveEdge(versionID, r.PathValue("edgeId"))
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// UndoHandler restores the previous snapshot.
func (h *APIHandler) UndoHandler(w http.ResponseWriter, r *http.Request) {
	versionID := r.PathValue("versionId")
	h.store.Undo(versionID)
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// RedoHandler reapplies the last undone snapshot.
func (h *APIHandler) RedoHandler(w http.ResponseWriter, r *http.Request) {
	versionID := r.PathValue("versionId")
	h.store.Redo(versionID)
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

// ValidateHandler runs validation now. Network failures show up in the
// returned validation state; a missing session is a 401.
func (h *APIHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	versionID := r.PathValue("versionId")
	if err := h.coord.Validate(r.Context(), versionID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.canvasResponse(versionID))
}

type stepRequest struct {
	StepID     string         `json:"stepId"`
	Status     string         `json:"status"`
	Properties map[string]any `json:"properties"`
}

// OnboardingHandler queues an onboarding step change for analytics.
func (h *APIHandler) OnboardingHandler(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.StepID == "" || req.Status == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stepId and status are required"})
		return
	}
	h.onboarding.MarkStep(req.StepID, req.Status, req.Properties)
	w.WriteHeader(http.StatusAccepted)
}
