// Package admin exposes the override endpoints. All routes require the
// configured bearer token.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/homefixr/dispatch/core/booking"
	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/dispatch"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/store"
	"github.com/homefixr/dispatch/infra/logger"
)

// Handler serves the admin override endpoints.
type Handler struct {
	engine *dispatch.Engine
	token  string
	log    logger.Logger
}

// NewHandler creates a Handler. An empty token disables the auth check;
// production deployments always set one.
func NewHandler(engine *dispatch.Engine, token string) *Handler {
	return &Handler{engine: engine, token: token, log: logger.New("admin_api")}
}

// Register mounts the admin routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/bookings/{id}/assign", h.authorized(h.forceAssign))
	mux.HandleFunc("POST /api/admin/bookings/{id}/status", h.authorized(h.forceStatus))
}

func (h *Handler) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			if r.Header.Get("Authorization") != "Bearer "+h.token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

type forceAssignRequest struct {
	TechnicianID string `json:"technician_id"`
	AdminID      string `json:"admin_id"`
}

func (h *Handler) forceAssign(w http.ResponseWriter, r *http.Request) {
	var req forceAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.ForceAssign(r.Context(), r.PathValue("id"), req.TechnicianID, req.AdminID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type forceStatusRequest struct {
	Status  string `json:"status"`
	AdminID string `json:"admin_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) forceStatus(w http.ResponseWriter, r *http.Request) {
	var req forceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, ok := model.ParseStatus(req.Status)
	if !ok {
		http.Error(w, "unknown booking status: "+req.Status, http.StatusBadRequest)
		return
	}
	b, err := h.engine.ForceStatusUpdate(r.Context(), r.PathValue("id"), target, req.AdminID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, directory.ErrUnknownTechnician):
		status = http.StatusNotFound
	default:
		switch booking.Classify(err) {
		case booking.KindValidation:
			status = http.StatusBadRequest
		case booking.KindConflict, booking.KindExhausted:
			status = http.StatusConflict
		}
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("admin request failed: %v", err)
		http.Error(w, "internal error", status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
