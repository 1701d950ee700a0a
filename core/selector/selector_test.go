package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/model"
)

func seedDirectory(t *testing.T, techs ...model.Technician) *directory.MemoryDirectory {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	for _, tech := range techs {
		require.NoError(t, dir.Upsert(context.Background(), tech))
	}
	return dir
}

func tech(id string, rating float64, online bool) model.Technician {
	return model.Technician{
		ID:       id,
		ZoneIDs:  []string{"zone-a"},
		Services: []string{"svc-1"},
		Online:   online,
		Rating:   rating,
	}
}

func TestSelectFiltersOfflineBusyExcluded(t *testing.T) {
	busy := tech("tech-busy", 5, true)
	busy.ActiveBookingID = "bkg-other"
	dir := seedDirectory(t,
		tech("tech-a", 4, true),
		tech("tech-off", 5, false),
		busy,
		tech("tech-x", 5, true),
	)
	sel := NewRankedSelector(dir)

	ids, err := sel.Select(context.Background(), Request{
		ZoneID: "zone-a", ServiceID: "svc-1",
		Excluded: map[string]struct{}{"tech-x": {}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech-a"}, ids)
}

func TestSelectOrdersByRatingWithoutLocation(t *testing.T) {
	dir := seedDirectory(t,
		tech("tech-low", 3.0, true),
		tech("tech-high", 4.9, true),
		tech("tech-mid", 4.1, true),
	)
	sel := NewRankedSelector(dir)

	ids, err := sel.Select(context.Background(), Request{ZoneID: "zone-a", ServiceID: "svc-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech-high", "tech-mid", "tech-low"}, ids)
}

func TestSelectPrefersProximity(t *testing.T) {
	near := tech("tech-near", 3.0, true)
	near.Location = &model.LatLng{Lat: 48.85, Lng: 2.35}
	far := tech("tech-far", 5.0, true)
	far.Location = &model.LatLng{Lat: 43.3, Lng: 5.37}
	dir := seedDirectory(t, near, far)
	sel := NewRankedSelector(dir)

	ids, err := sel.Select(context.Background(), Request{
		ZoneID: "zone-a", ServiceID: "svc-1",
		Location: &model.LatLng{Lat: 48.86, Lng: 2.34},
	})
	require.NoError(t, err)
	// Proximity weight 0.7 beats the far technician's better rating.
	assert.Equal(t, []string{"tech-near", "tech-far"}, ids)
}

func TestSelectUnknownLocationRanksLast(t *testing.T) {
	located := tech("tech-b", 1.0, true)
	located.Location = &model.LatLng{Lat: 48.85, Lng: 2.35}
	unlocated := tech("tech-a", 1.0, true)
	dir := seedDirectory(t, located, unlocated)
	sel := NewRankedSelector(dir)

	ids, err := sel.Select(context.Background(), Request{
		ZoneID: "zone-a", ServiceID: "svc-1",
		Location: &model.LatLng{Lat: 48.85, Lng: 2.35},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech-b", "tech-a"}, ids)
}

func TestSelectTieBreaksOnID(t *testing.T) {
	dir := seedDirectory(t,
		tech("tech-c", 4.0, true),
		tech("tech-a", 4.0, true),
		tech("tech-b", 4.0, true),
	)
	sel := NewRankedSelector(dir)

	ids, err := sel.Select(context.Background(), Request{ZoneID: "zone-a", ServiceID: "svc-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech-a", "tech-b", "tech-c"}, ids)
}

func TestSelectEmptyPool(t *testing.T) {
	dir := seedDirectory(t, tech("tech-elsewhere", 4.0, true))
	sel := NewRankedSelector(dir)

	ids, err := sel.Select(context.Background(), Request{ZoneID: "zone-z", ServiceID: "svc-1"})
	require.NoError(t, err)
	assert.Nil(t, ids)
}
