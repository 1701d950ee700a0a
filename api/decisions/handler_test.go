package decisions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/model"
)

func seededStore(t *testing.T) audit.LogStore {
	t.Helper()
	s, err := audit.NewJSONLStore(filepath.Join(t.TempDir(), "decisions.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, audit.Record{
		Timestamp: base, BookingID: "bkg-1", Status: model.StatusRequested,
		Actor: model.Actor{ID: "cust-1", Role: model.RoleCustomer},
	}))
	require.NoError(t, s.Append(ctx, audit.Record{
		Timestamp: base.Add(time.Hour), BookingID: "bkg-2", Status: model.StatusAccepted,
		Actor: model.SystemActor, TechnicianID: "tech-a",
	}))
	return s
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDecisionsRequiresToken(t *testing.T) {
	h := NewHandler(seededStore(t), "secret")

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/dispatch/decisions", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/dispatch/decisions", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/dispatch/decisions", "secret").Code)
}

func TestDecisionsFilters(t *testing.T) {
	h := NewHandler(seededStore(t), "")

	rec := get(t, h, "/api/dispatch/decisions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []audit.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	rec = get(t, h, "/api/dispatch/decisions?booking_id=bkg-2", "")
	records = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "tech-a", records[0].TechnicianID)

	rec = get(t, h, "/api/dispatch/decisions?status=ACCEPTED", "")
	records = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)

	rec = get(t, h, "/api/dispatch/decisions?end=2025-06-01T09:30:00Z", "")
	records = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "bkg-1", records[0].BookingID)

	rec = get(t, h, "/api/dispatch/decisions?booking_id=none", "")
	assert.JSONEq(t, "[]", rec.Body.String())
}
