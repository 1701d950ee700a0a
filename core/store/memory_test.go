package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/model"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := &model.Booking{ID: "bkg-1", CustomerID: "cust-1", Status: model.StatusRequested}

	require.NoError(t, s.Create(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := s.Get(ctx, "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)

	// Stored state must be isolated from caller mutations.
	got.CustomerID = "other"
	again, err := s.Get(ctx, "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", again.CustomerID)

	assert.ErrorIs(t, s.Create(ctx, &model.Booking{ID: "bkg-1"}), ErrDuplicateID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := &model.Booking{ID: "bkg-1", Status: model.StatusRequested}
	require.NoError(t, s.Create(ctx, b))

	next := b.Clone()
	next.Status = model.StatusCancelled
	require.NoError(t, s.CompareAndSwap(ctx, "bkg-1", 1, next))
	assert.Equal(t, int64(2), next.Version)

	stale := b.Clone()
	stale.Status = model.StatusFailedAssignment
	err := s.CompareAndSwap(ctx, "bkg-1", 1, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.Get(ctx, "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, int64(2), got.Version)

	assert.ErrorIs(t, s.CompareAndSwap(ctx, "missing", 1, next), ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	accepted := model.StatusAccepted
	bookings := []*model.Booking{
		{ID: "b1", CustomerID: "cust-1", Status: model.StatusRequested, CreatedAt: base},
		{ID: "b2", CustomerID: "cust-1", TechnicianID: "tech-1", Status: accepted, CreatedAt: base.Add(time.Second)},
		{ID: "b3", CustomerID: "cust-2", Status: model.StatusRequested, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, b := range bookings {
		require.NoError(t, s.Create(ctx, b))
	}

	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b1", all[0].ID, "list is ordered by creation time")

	byCustomer, err := s.List(ctx, ListFilter{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	byTech, err := s.List(ctx, ListFilter{TechnicianID: "tech-1"})
	require.NoError(t, err)
	require.Len(t, byTech, 1)
	assert.Equal(t, "b2", byTech[0].ID)

	byStatus, err := s.List(ctx, ListFilter{Status: &accepted})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "b2", byStatus[0].ID)
}
