// Package decisions exposes the dispatch decision log over HTTP for the
// back office.
package decisions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/model"
)

// NewHandler returns an HTTP handler exposing dispatch decisions via
// GET /api/dispatch/decisions. Requests must include an Authorization header
// with "Bearer <token>" when token is non-empty.
func NewHandler(store audit.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := audit.Query{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.BookingID = r.URL.Query().Get("booking_id")
		if s := r.URL.Query().Get("status"); s != "" {
			if st, ok := model.ParseStatus(s); ok {
				q.Status = &st
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []audit.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
