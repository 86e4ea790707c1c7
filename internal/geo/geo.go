// Package geo scores how closely a published trip follows a searched route.
package geo

import "math"

// earthRadiusKm is the mean earth radius used by Distance.
const earthRadiusKm = 6371.0

// DefaultMaxDeviationKm is the endpoint tolerance used when a search does not
// set one.
const DefaultMaxDeviationKm = 5.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Route is an origin/destination pair.
type Route struct {
	Origin      Point
	Destination Point
}

// Length returns the great-circle distance between the route endpoints in km.
func (r Route) Length() float64 {
	return Distance(r.Origin, r.Destination)
}

// Result describes how a trip route compares with a search route.
type Result struct {
	OriginDeviationKm      float64
	DestinationDeviationKm float64
	// Matched is true only when both deviations are within the threshold.
	Matched bool
	// Score is the overlap percentage in [0, 100]. It is 0 when Matched is false.
	Score float64
}

// Distance returns the haversine distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Score compares trip against search. Both endpoint deviations must be at
// most maxDeviationKm for a match. The score is
// 100 - (originDev+destinationDev) / searchLength * 100, floored at 0, and
// is 100 for a zero-length search route.
func Score(trip, search Route, maxDeviationKm float64) Result {
	res := Result{
		OriginDeviationKm:      Distance(trip.Origin, search.Origin),
		DestinationDeviationKm: Distance(trip.Destination, search.Destination),
	}
	if res.OriginDeviationKm > maxDeviationKm || res.DestinationDeviationKm > maxDeviationKm {
		return res
	}

	res.Matched = true
	total := search.Length()
	if total == 0 {
		res.Score = 100
		return res
	}
	res.Score = math.Max(0, 100-(res.OriginDeviationKm+res.DestinationDeviationKm)/total*100)
	return res
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
