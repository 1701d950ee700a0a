package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/model"
)

func TestMemoryDirectoryFindEligible(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t2", ZoneIDs: []string{"z1"}, Services: []string{"s1"}}))
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t1", ZoneIDs: []string{"z1"}, Services: []string{"s1"}}))
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t3", ZoneIDs: []string{"z2"}, Services: []string{"s1"}}))
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t4", ZoneIDs: []string{"z1"}, Services: []string{"s2"}}))

	ts, err := d.FindEligible(ctx, "z1", "s1")
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "t1", ts[0].ID, "results are sorted by id")
	assert.Equal(t, "t2", ts[1].ID)
}

func TestMemoryDirectoryUpsertPreservesActiveBooking(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t1", Online: true}))
	require.NoError(t, d.TryBind(ctx, "t1", "bkg-1"))

	// A roster update without a pointer must not release the job binding.
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t1", Online: true, Rating: 4.5}))
	got, err := d.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "bkg-1", got.ActiveBookingID)
	assert.Equal(t, 4.5, got.Rating)

	require.NoError(t, d.Release(ctx, "t1", "bkg-1"))
	got, err = d.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.ActiveBookingID)
}

func TestMemoryDirectoryTryBindExclusive(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t1", Online: true}))

	require.NoError(t, d.TryBind(ctx, "t1", "bkg-1"))
	// Rebinding the same booking is a no-op, a different one is refused.
	require.NoError(t, d.TryBind(ctx, "t1", "bkg-1"))
	assert.ErrorIs(t, d.TryBind(ctx, "t1", "bkg-2"), ErrAlreadyBound)

	// A release naming the wrong booking must not steal the binding.
	require.NoError(t, d.Release(ctx, "t1", "bkg-2"))
	got, err := d.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "bkg-1", got.ActiveBookingID)

	require.NoError(t, d.Release(ctx, "t1", "bkg-1"))
	require.NoError(t, d.TryBind(ctx, "t1", "bkg-2"))
}

func TestMemoryDirectoryUnknownTechnician(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	_, err := d.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownTechnician)
	assert.ErrorIs(t, d.SetOnline(ctx, "ghost", true), ErrUnknownTechnician)
	assert.ErrorIs(t, d.TryBind(ctx, "ghost", "bkg-1"), ErrUnknownTechnician)
	assert.ErrorIs(t, d.Release(ctx, "ghost", "bkg-1"), ErrUnknownTechnician)
	assert.Error(t, d.Upsert(ctx, model.Technician{}))
}

func TestMemoryDirectoryList(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t1", ZoneIDs: []string{"z1"}, Services: []string{"s1"}, Online: true}))
	require.NoError(t, d.Upsert(ctx, model.Technician{ID: "t2", ZoneIDs: []string{"z1"}, Services: []string{"s1"}}))

	online := true
	ts, err := d.List(ctx, Filter{ZoneID: "z1", Online: &online})
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "t1", ts[0].ID)

	require.NoError(t, d.SetOnline(ctx, "t2", true))
	ts, err = d.List(ctx, Filter{Online: &online})
	require.NoError(t, err)
	assert.Len(t, ts, 2)
}
