package selector

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/homefixr/dispatch/core/directory"
	"github.com/homefixr/dispatch/core/model"
)

// Request describes one candidate selection round.
type Request struct {
	ZoneID    string
	ServiceID string
	// Location of the job site, when known. Enables proximity ordering.
	Location *model.LatLng
	// Excluded technicians are never returned (already rejected or expired
	// for this booking).
	Excluded map[string]struct{}
}

// Selector produces an ordered queue of eligible technicians for a booking.
// An empty result is not an error; the caller decides whether that means the
// assignment failed.
type Selector interface {
	Select(ctx context.Context, req Request) ([]string, error)
}

// RankedSelector orders online technicians by proximity when the job location
// is known, otherwise by rating. Ties break on technician id so selection is
// deterministic.
type RankedSelector struct {
	Directory directory.Directory
	// ProximityWeight and RatingWeight blend the two normalized criteria
	// when both are available.
	ProximityWeight float64
	RatingWeight    float64
}

// NewRankedSelector returns a selector with default weights favouring
// proximity.
func NewRankedSelector(dir directory.Directory) *RankedSelector {
	return &RankedSelector{Directory: dir, ProximityWeight: 0.7, RatingWeight: 0.3}
}

// Select implements Selector.
func (s *RankedSelector) Select(ctx context.Context, req Request) ([]string, error) {
	techs, err := s.Directory.FindEligible(ctx, req.ZoneID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	var pool []model.Technician
	for _, t := range techs {
		if !t.Online || t.Busy() {
			continue
		}
		if _, ok := req.Excluded[t.ID]; ok {
			continue
		}
		pool = append(pool, t)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	scores := s.score(pool, req.Location)
	sort.SliceStable(pool, func(i, j int) bool {
		if scores[pool[i].ID] != scores[pool[j].ID] {
			return scores[pool[i].ID] > scores[pool[j].ID]
		}
		return pool[i].ID < pool[j].ID
	})

	ids := make([]string, len(pool))
	for i, t := range pool {
		ids[i] = t.ID
	}
	return ids, nil
}

// score computes a normalized ranking score per technician. Distances and
// ratings are scaled to [0,1] across the pool before weighting so neither
// criterion dominates on raw magnitude.
func (s *RankedSelector) score(pool []model.Technician, loc *model.LatLng) map[string]float64 {
	ratings := make([]float64, len(pool))
	for i, t := range pool {
		ratings[i] = t.Rating
	}
	normalize(ratings)

	dists := make([]float64, len(pool))
	haveDist := false
	if loc != nil {
		for i, t := range pool {
			if t.Location != nil {
				dists[i] = haversineKm(*loc, *t.Location)
				haveDist = true
			} else {
				dists[i] = math.Inf(1)
			}
		}
	}

	scores := make(map[string]float64, len(pool))
	if haveDist {
		far := floats.Max(finite(dists))
		prox := make([]float64, len(pool))
		for i, d := range dists {
			if math.IsInf(d, 1) {
				prox[i] = 0
				continue
			}
			if far > 0 {
				prox[i] = 1 - d/far
			} else {
				prox[i] = 1
			}
		}
		for i, t := range pool {
			scores[t.ID] = s.ProximityWeight*prox[i] + s.RatingWeight*ratings[i]
		}
		return scores
	}
	for i, t := range pool {
		scores[t.ID] = ratings[i]
	}
	return scores
}

// normalize scales values to [0,1] in place.
func normalize(v []float64) {
	if len(v) == 0 {
		return
	}
	min, max := floats.Min(v), floats.Max(v)
	if max == min {
		for i := range v {
			v[i] = 1
		}
		return
	}
	floats.AddConst(-min, v)
	floats.Scale(1/(max-min), v)
}

func finite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return []float64{0}
	}
	return out
}

// haversineKm returns the great-circle distance between two points.
func haversineKm(a, b model.LatLng) float64 {
	const earthRadiusKm = 6371.0
	la1, la2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
