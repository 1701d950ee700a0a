package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/homefixr/dispatch/core/model"
)

// ErrUnknownTechnician is returned for lookups of unregistered technicians.
var ErrUnknownTechnician = errors.New("unknown technician")

// ErrAlreadyBound is returned by TryBind when the technician is bound to a
// different booking.
var ErrAlreadyBound = errors.New("technician already bound to another booking")

// Filter narrows List results.
type Filter struct {
	ZoneID    string
	ServiceID string
	Online    *bool
}

// Directory exposes the technician roster to the dispatch engine. The engine
// treats it as an external collaborator: eligibility lookups plus the
// exclusive current-booking pointer per technician.
type Directory interface {
	FindEligible(ctx context.Context, zoneID, serviceID string) ([]model.Technician, error)
	Get(ctx context.Context, id string) (model.Technician, error)
	List(ctx context.Context, f Filter) ([]model.Technician, error)
	Upsert(ctx context.Context, t model.Technician) error
	SetOnline(ctx context.Context, id string, online bool) error
	// TryBind claims the technician for the booking. The check and the
	// write happen under one directory lock: binding fails with
	// ErrAlreadyBound when the technician already holds a different
	// booking, and is idempotent for the same one.
	TryBind(ctx context.Context, id, bookingID string) error
	// Release clears the binding only if it still points at bookingID, so
	// a late release cannot steal a technician rebound elsewhere.
	Release(ctx context.Context, id, bookingID string) error
}

// MemoryDirectory is the in-memory Directory implementation used by the
// standalone engine and by tests.
type MemoryDirectory struct {
	mu   sync.RWMutex
	data map[string]model.Technician
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{data: map[string]model.Technician{}}
}

func (d *MemoryDirectory) FindEligible(_ context.Context, zoneID, serviceID string) ([]model.Technician, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var res []model.Technician
	for _, t := range d.data {
		if t.ServesZone(zoneID) && t.Provides(serviceID) {
			res = append(res, t)
		}
	}
	sortByID(res)
	return res, nil
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (model.Technician, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.data[id]
	if !ok {
		return model.Technician{}, ErrUnknownTechnician
	}
	return t, nil
}

func (d *MemoryDirectory) List(_ context.Context, f Filter) ([]model.Technician, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var res []model.Technician
	for _, t := range d.data {
		if f.ZoneID != "" && !t.ServesZone(f.ZoneID) {
			continue
		}
		if f.ServiceID != "" && !t.Provides(f.ServiceID) {
			continue
		}
		if f.Online != nil && t.Online != *f.Online {
			continue
		}
		res = append(res, t)
	}
	sortByID(res)
	return res, nil
}

func (d *MemoryDirectory) Upsert(_ context.Context, t model.Technician) error {
	if t.ID == "" {
		return errors.New("technician id required")
	}
	d.mu.Lock()
	if cur, ok := d.data[t.ID]; ok && t.ActiveBookingID == "" {
		// Roster updates never clear the dispatch-owned booking pointer.
		t.ActiveBookingID = cur.ActiveBookingID
	}
	d.data[t.ID] = t
	d.mu.Unlock()
	return nil
}

func (d *MemoryDirectory) SetOnline(_ context.Context, id string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.data[id]
	if !ok {
		return ErrUnknownTechnician
	}
	t.Online = online
	d.data[id] = t
	return nil
}

func (d *MemoryDirectory) TryBind(_ context.Context, id, bookingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.data[id]
	if !ok {
		return ErrUnknownTechnician
	}
	if t.ActiveBookingID != "" && t.ActiveBookingID != bookingID {
		return ErrAlreadyBound
	}
	t.ActiveBookingID = bookingID
	d.data[id] = t
	return nil
}

func (d *MemoryDirectory) Release(_ context.Context, id, bookingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.data[id]
	if !ok {
		return ErrUnknownTechnician
	}
	if t.ActiveBookingID != bookingID {
		return nil
	}
	t.ActiveBookingID = ""
	d.data[id] = t
	return nil
}

func sortByID(ts []model.Technician) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
