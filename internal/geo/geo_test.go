package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/ecopool/backend/internal/geo"
)

var (
	koramangala = geo.Point{Lat: 12.9352, Lng: 77.6245}
	whitefield  = geo.Point{Lat: 12.9698, Lng: 77.7500}
	indiranagar = geo.Point{Lat: 12.9784, Lng: 77.6408}
)

func TestDistance_KnownPair(t *testing.T) {
	// London to Paris is roughly 343.5 km along the great circle.
	london := geo.Point{Lat: 51.5074, Lng: -0.1278}
	paris := geo.Point{Lat: 48.8566, Lng: 2.3522}

	assert.InDelta(t, 343.5, geo.Distance(london, paris), 1.0)
}

func TestDistance_SamePointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, geo.Distance(whitefield, whitefield))
}

func TestDistance_Symmetric(t *testing.T) {
	assert.InDelta(t, geo.Distance(koramangala, whitefield), geo.Distance(whitefield, koramangala), 1e-9)
}

func TestScore_IdenticalRoutes(t *testing.T) {
	r := geo.Route{Origin: koramangala, Destination: whitefield}

	res := geo.Score(r, r, 5)

	require.True(t, res.Matched)
	assert.Equal(t, 100.0, res.Score)
	assert.Zero(t, res.OriginDeviationKm)
	assert.Zero(t, res.DestinationDeviationKm)
}

func TestScore_SmallDeviationReducesScore(t *testing.T) {
	search := geo.Route{Origin: koramangala, Destination: whitefield}
	// About 1.1 km north of the search origin.
	trip := geo.Route{Origin: geo.Point{Lat: 12.9452, Lng: 77.6245}, Destination: whitefield}

	res := geo.Score(trip, search, 5)

	require.True(t, res.Matched)
	assert.InDelta(t, 1.11, res.OriginDeviationKm, 0.02)
	want := 100 - res.OriginDeviationKm/search.Length()*100
	assert.InDelta(t, want, res.Score, 1e-9)
	assert.Less(t, res.Score, 100.0)
}

func TestScore_DeviationBeyondThresholdDoesNotMatch(t *testing.T) {
	search := geo.Route{Origin: koramangala, Destination: whitefield}
	trip := geo.Route{Origin: indiranagar, Destination: whitefield}

	res := geo.Score(trip, search, 2)

	assert.False(t, res.Matched)
	assert.Zero(t, res.Score)
	assert.Greater(t, res.OriginDeviationKm, 2.0)
}

func TestScore_MatchImpliesBothDeviationsWithinThreshold(t *testing.T) {
	search := geo.Route{Origin: koramangala, Destination: whitefield}
	candidates := []geo.Route{
		{Origin: koramangala, Destination: whitefield},
		{Origin: indiranagar, Destination: whitefield},
		{Origin: koramangala, Destination: indiranagar},
		{Origin: geo.Point{Lat: 12.94, Lng: 77.63}, Destination: geo.Point{Lat: 12.97, Lng: 77.74}},
	}
	for _, max := range []float64{0.5, 1, 5, 20} {
		for _, c := range candidates {
			res := geo.Score(c, search, max)
			if res.Matched {
				assert.LessOrEqual(t, res.OriginDeviationKm, max)
				assert.LessOrEqual(t, res.DestinationDeviationKm, max)
				assert.GreaterOrEqual(t, res.Score, 0.0)
				assert.LessOrEqual(t, res.Score, 100.0)
			}
		}
	}
}

func TestScore_ZeroLengthSearchScores100(t *testing.T) {
	search := geo.Route{Origin: koramangala, Destination: koramangala}
	trip := geo.Route{Origin: geo.Point{Lat: 12.9360, Lng: 77.6245}, Destination: koramangala}

	res := geo.Score(trip, search, 5)

	require.True(t, res.Matched)
	assert.Equal(t, 100.0, res.Score)
}

func TestScore_LargeDeviationFloorsAtZero(t *testing.T) {
	// A 2 km search route with endpoints each 1.5 km off: deviation exceeds
	// the route length, so the score is clamped.
	search := geo.Route{Origin: geo.Point{Lat: 12.90, Lng: 77.60}, Destination: geo.Point{Lat: 12.918, Lng: 77.60}}
	trip := geo.Route{Origin: geo.Point{Lat: 12.90, Lng: 77.6138}, Destination: geo.Point{Lat: 12.918, Lng: 77.6138}}

	res := geo.Score(trip, search, 5)

	require.True(t, res.Matched)
	assert.Equal(t, 0.0, res.Score)
}
