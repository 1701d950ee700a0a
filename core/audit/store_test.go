package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/model"
)

func sampleRecords(base time.Time) []Record {
	return []Record{
		{
			Timestamp: base,
			BookingID: "bkg-1",
			Status:    model.StatusRequested,
			Actor:     model.Actor{ID: "cust-1", Role: model.RoleCustomer},
		},
		{
			Timestamp:    base.Add(time.Minute),
			BookingID:    "bkg-1",
			Status:       model.StatusAssignedPending,
			Actor:        model.SystemActor,
			TechnicianID: "tech-a",
			Attempt:      1,
		},
		{
			Timestamp:    base.Add(2 * time.Minute),
			BookingID:    "bkg-2",
			Status:       model.StatusAccepted,
			Actor:        model.Actor{ID: "tech-b", Role: model.RoleTechnician},
			TechnicianID: "tech-b",
			Reason:       "offer accepted",
		},
	}
}

func runStoreTests(t *testing.T, s LogStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, rec := range sampleRecords(base) {
		require.NoError(t, s.Append(ctx, rec))
	}

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "bkg-1", all[0].BookingID)
	assert.Equal(t, model.StatusRequested, all[0].Status)
	assert.Equal(t, "tech-b", all[2].TechnicianID)
	assert.Equal(t, 1, all[1].Attempt)

	byBooking, err := s.Query(ctx, Query{BookingID: "bkg-1"})
	require.NoError(t, err)
	assert.Len(t, byBooking, 2)

	accepted := model.StatusAccepted
	byStatus, err := s.Query(ctx, Query{Status: &accepted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "bkg-2", byStatus[0].BookingID)

	window, err := s.Query(ctx, Query{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, model.StatusAssignedPending, window[0].Status)

	none, err := s.Query(ctx, Query{BookingID: "bkg-1", Status: &accepted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runStoreTests(t, s)
}

func TestJSONLStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.log")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, Record{Timestamp: time.Now().UTC(), BookingID: "bkg-1", Status: model.StatusRequested}))
	require.NoError(t, s.Close())

	reopened, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	recs, err := reopened.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1, "reopening must not truncate existing records")
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	runStoreTests(t, s)
}
