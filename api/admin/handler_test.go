package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/dispatch"
	"github.com/homefixr/dispatch/core/lock"
	"github.com/homefixr/dispatch/core/model"
	"github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/core/selector"
	"github.com/homefixr/dispatch/core/store"
)

const testToken = "hunter2"

func newTestMux(t *testing.T) (*http.ServeMux, *dispatch.Engine, *directory.MemoryDirectory) {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	eng, err := dispatch.NewEngine(store.NewMemoryStore(), dir, selector.NewRankedSelector(dir),
		lock.NewKeyedMutex(), notify.NopSink{}, dispatch.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	mux := http.NewServeMux()
	NewHandler(eng, testToken).Register(mux)
	return mux, eng, dir
}

func doJSON(t *testing.T, mux *http.ServeMux, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func failedBooking(t *testing.T, eng *dispatch.Engine) *model.Booking {
	t.Helper()
	b, err := eng.CreateBooking(context.Background(), dispatch.CreateRequest{
		CustomerID: "cust-1", ServiceID: "s1", ZoneID: "z1", EstimatedPrice: 50,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailedAssignment, b.Status)
	return b
}

func TestForceAssignRequiresToken(t *testing.T) {
	mux, eng, _ := newTestMux(t)
	b := failedBooking(t, eng)
	body := map[string]string{"technician_id": "tech-a", "admin_id": "admin-1"}

	rec := doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/assign", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/assign", "wrong", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForceAssignEndpoint(t *testing.T) {
	mux, eng, dir := newTestMux(t)
	b := failedBooking(t, eng)

	rec := doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/assign", testToken,
		map[string]string{"technician_id": "ghost", "admin_id": "admin-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown technician")

	require.NoError(t, dir.Upsert(context.Background(), model.Technician{
		ID: "tech-a", ZoneIDs: []string{"z1"}, Services: []string{"s1"}, Online: true,
	}))
	rec = doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/assign", testToken,
		map[string]string{"technician_id": "tech-a", "admin_id": "admin-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Equal(t, "tech-a", got.TechnicianID)

	rec = doJSON(t, mux, "/api/admin/bookings/nope/assign", testToken,
		map[string]string{"technician_id": "tech-a", "admin_id": "admin-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForceStatusEndpoint(t *testing.T) {
	mux, eng, dir := newTestMux(t)
	require.NoError(t, dir.Upsert(context.Background(), model.Technician{
		ID: "tech-a", ZoneIDs: []string{"z1"}, Services: []string{"s1"}, Online: true,
	}))
	b, err := eng.CreateBooking(context.Background(), dispatch.CreateRequest{
		CustomerID: "cust-1", ServiceID: "s1", ZoneID: "z1", EstimatedPrice: 50,
	})
	require.NoError(t, err)

	rec := doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/status", testToken,
		map[string]string{"status": "BOGUS", "admin_id": "admin-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/status", testToken,
		map[string]string{"status": "IN_PROGRESS", "admin_id": "admin-1"})
	assert.Equal(t, http.StatusConflict, rec.Code, "no technician bound yet")

	rec = doJSON(t, mux, "/api/admin/bookings/"+b.ID+"/status", testToken,
		map[string]string{"status": "CANCELLED", "admin_id": "admin-1", "reason": "duplicate request"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got model.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.StatusCancelled, got.Status)
}
