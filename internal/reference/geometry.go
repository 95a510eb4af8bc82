package reference

import (
	"math"
	"sort"
)

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371010.0

// shortHop is the coordinate delta, in degrees, below which Distance uses the
// equirectangular approximation (roughly 22 km).
const shortHop = 0.2

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	if math.Abs(lat2-lat1) < shortHop && math.Abs(lon2-lon1) < shortHop {
		x := dLambda * math.Cos((phi1+phi2)/2)
		return EarthRadiusMeters * math.Hypot(x, dPhi)
	}

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundsAround returns the box enclosing the circle of radius meters around
// the point.
func BoundsAround(lat, lon, radius float64) Bounds {
	latOffset := radius / EarthRadiusMeters * 180 / math.Pi
	lonOffset := radius / (EarthRadiusMeters * math.Cos(radians(lat))) * 180 / math.Pi
	return Bounds{
		MinLat: lat - latOffset,
		MaxLat: lat + latOffset,
		MinLon: lon - lonOffset,
		MaxLon: lon + lonOffset,
	}
}

// Overlaps reports whether b and other share any point.
func (b Bounds) Overlaps(other Bounds) bool {
	return b.MaxLat >= other.MinLat && b.MinLat <= other.MaxLat &&
		b.MaxLon >= other.MinLon && b.MinLon <= other.MaxLon
}

// NearbyStop is a stop with its distance from the query point.
type NearbyStop struct {
	Stop
	Distance float64 `json:"distance"`
}

// StopsNear returns up to limit located stops within radius meters of the
// point, nearest first. Ties keep file order. A limit of zero or less
// returns every match.
func (x *Index) StopsNear(lat, lon, radius float64, limit int) []NearbyStop {
	box := BoundsAround(lat, lon, radius)
	if !box.Overlaps(x.region) {
		return []NearbyStop{}
	}

	candidates := x.StopsInBounds(box, 0)
	out := make([]NearbyStop, 0, len(candidates))
	for _, s := range candidates {
		if d := Distance(lat, lon, s.Latitude, s.Longitude); d <= radius {
			out = append(out, NearbyStop{Stop: s, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
