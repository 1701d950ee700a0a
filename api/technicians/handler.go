// Package technicians exposes the roster endpoints used by the technician
// app and the back office.
package technicians

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/infra/logger"
)

// Handler serves the technician roster endpoints.
type Handler struct {
	dir directory.Directory
	log logger.Logger
}

// NewHandler creates a Handler around the directory.
func NewHandler(dir directory.Directory) *Handler {
	return &Handler{dir: dir, log: logger.New("technicians_api")}
}

// Register mounts the roster routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/technicians", h.list)
	mux.HandleFunc("GET /api/technicians/{id}", h.get)
	mux.HandleFunc("PUT /api/technicians/{id}", h.upsert)
	mux.HandleFunc("POST /api/technicians/{id}/online", h.setOnline)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := directory.Filter{
		ZoneID:    r.URL.Query().Get("zone_id"),
		ServiceID: r.URL.Query().Get("service_id"),
	}
	if s := r.URL.Query().Get("online"); s != "" {
		online, err := strconv.ParseBool(s)
		if err != nil {
			http.Error(w, "online must be a boolean", http.StatusBadRequest)
			return
		}
		f.Online = &online
	}
	ts, err := h.dir.List(r.Context(), f)
	if err != nil {
		h.log.Errorf("list technicians: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ts == nil {
		ts = []model.Technician{}
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.dir.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var t model.Technician
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	t.ID = r.PathValue("id")
	// The dispatch engine owns the active-booking pointer.
	t.ActiveBookingID = ""
	if err := h.dir.Upsert(r.Context(), t); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type onlineRequest struct {
	Online bool `json:"online"`
}

func (h *Handler) setOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.dir.SetOnline(r.Context(), r.PathValue("id"), req.Online); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, directory.ErrUnknownTechnician) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.log.Errorf("technician request failed: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
