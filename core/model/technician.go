package model

// Technician represents a field technician known to the dispatch engine.
// The authoritative record lives in the technician directory; the engine only
// consumes eligibility and availability data.
type Technician struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	ZoneIDs  []string `json:"zone_ids"`
	Services []string `json:"services"`
	Online   bool     `json:"online"`
	Rating   float64  `json:"rating"` // 0..5
	Location *LatLng  `json:"location,omitempty"`

	// ActiveBookingID points at the technician's current non-terminal
	// booking. A technician never holds two active jobs.
	ActiveBookingID string `json:"active_booking_id,omitempty"`
}

// ServesZone reports whether the technician covers the given zone.
func (t Technician) ServesZone(zoneID string) bool {
	for _, z := range t.ZoneIDs {
		if z == zoneID {
			return true
		}
	}
	return false
}

// Provides reports whether the technician offers the given service.
func (t Technician) Provides(serviceID string) bool {
	for _, s := range t.Services {
		if s == serviceID {
			return true
		}
	}
	return false
}

// Busy reports whether the technician already has an active booking.
func (t Technician) Busy() bool { return t.ActiveBookingID != "" }
