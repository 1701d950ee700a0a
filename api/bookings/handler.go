// Package bookings exposes the dispatch engine over HTTP. Routing uses the
// standard library mux with method patterns; the engine stays transport
// agnostic behind it.
package bookings

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/homefixr/dispatch/core/booking"
	"github.com/homefixr/dispatch/core/dispatch"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/store"
	"github.com/homefixr/dispatch/infra/logger"
)

// Handler serves the booking endpoints.
type Handler struct {
	engine *dispatch.Engine
	log    logger.Logger
}

// NewHandler creates a Handler around the engine.
func NewHandler(engine *dispatch.Engine) *Handler {
	return &Handler{engine: engine, log: logger.New("bookings_api")}
}

// Register mounts the booking routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/bookings", h.create)
	mux.HandleFunc("GET /api/bookings", h.list)
	mux.HandleFunc("GET /api/bookings/{id}", h.get)
	mux.HandleFunc("POST /api/bookings/{id}/accept", h.accept)
	mux.HandleFunc("POST /api/bookings/{id}/reject", h.reject)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /api/bookings/{id}/status", h.updateStatus)
	mux.HandleFunc("POST /api/bookings/{id}/extra-charges", h.proposeCharge)
	mux.HandleFunc("POST /api/bookings/{id}/extra-charges/{chargeID}/respond", h.respondCharge)
}

type createRequest struct {
	CustomerID     string        `json:"customer_id"`
	ServiceID      string        `json:"service_id"`
	CategoryID     string        `json:"category_id"`
	ZoneID         string        `json:"zone_id"`
	EstimatedPrice float64       `json:"estimated_price"`
	Location       *model.LatLng `json:"location,omitempty"`
	Contact        model.Contact `json:"contact"`
	ScheduledAt    *time.Time    `json:"scheduled_at,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.CreateBooking(r.Context(), dispatch.CreateRequest{
		CustomerID:     req.CustomerID,
		ServiceID:      req.ServiceID,
		CategoryID:     req.CategoryID,
		ZoneID:         req.ZoneID,
		EstimatedPrice: req.EstimatedPrice,
		Location:       req.Location,
		Contact:        req.Contact,
		ScheduledAt:    req.ScheduledAt,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := store.ListFilter{
		CustomerID:   r.URL.Query().Get("customer_id"),
		TechnicianID: r.URL.Query().Get("technician_id"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st, ok := model.ParseStatus(s)
		if !ok {
			h.writeError(w, &model.UnknownStatusError{Value: s})
			return
		}
		f.Status = &st
	}
	bs, err := h.engine.ListBookings(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if bs == nil {
		bs = []*model.Booking{}
	}
	writeJSON(w, http.StatusOK, bs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type technicianRequest struct {
	TechnicianID string `json:"technician_id"`
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	var req technicianRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Accept(r.Context(), r.PathValue("id"), req.TechnicianID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req technicianRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Reject(r.Context(), r.PathValue("id"), req.TechnicianID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type cancelRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	Reason  string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	role := model.ActorRole(req.Role)
	if role != model.RoleCustomer && role != model.RoleTechnician {
		http.Error(w, "role must be customer or technician", http.StatusBadRequest)
		return
	}
	actor := model.Actor{ID: req.ActorID, Role: role}
	b, err := h.engine.Cancel(r.Context(), r.PathValue("id"), actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type statusRequest struct {
	TechnicianID string `json:"technician_id"`
	Status       string `json:"status"`
	OTP          string `json:"otp,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
}

// updateStatus drives the job lifecycle. The target status selects the
// engine operation so the transition rules stay in one place.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, ok := model.ParseStatus(req.Status)
	if !ok {
		h.writeError(w, &model.UnknownStatusError{Value: req.Status})
		return
	}
	id := r.PathValue("id")
	var b *model.Booking
	var err error
	switch target {
	case model.StatusEnRoute:
		b, err = h.engine.MarkEnRoute(r.Context(), id, req.TechnicianID)
	case model.StatusReached:
		b, err = h.engine.MarkReached(r.Context(), id, req.TechnicianID)
	case model.StatusInProgress:
		b, err = h.engine.StartJob(r.Context(), id, req.TechnicianID, req.OTP)
	case model.StatusCompleted:
		b, err = h.engine.Complete(r.Context(), id, req.TechnicianID)
	case model.StatusPaid:
		actor := model.Actor{ID: req.ActorID, Role: model.RoleCustomer}
		b, err = h.engine.MarkPaid(r.Context(), id, actor)
	default:
		http.Error(w, "status not reachable via this endpoint", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type proposeChargeRequest struct {
	TechnicianID string  `json:"technician_id"`
	Title        string  `json:"title"`
	Amount       float64 `json:"amount"`
}

func (h *Handler) proposeCharge(w http.ResponseWriter, r *http.Request) {
	var req proposeChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.ProposeExtraCharge(r.Context(), r.PathValue("id"), req.TechnicianID, req.Title, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type respondChargeRequest struct {
	CustomerID string `json:"customer_id"`
	Approve    bool   `json:"approve"`
}

func (h *Handler) respondCharge(w http.ResponseWriter, r *http.Request) {
	var req respondChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.RespondExtraCharge(r.Context(), r.PathValue("id"), req.CustomerID, r.PathValue("chargeID"), req.Approve)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
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
		h.log.Errorf("request failed: %v", err)
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
