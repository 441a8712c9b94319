package splitter

import (
	"testing"

	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareArea() models.Area {
	return models.Area{
		Vertices: []models.GeoPoint{
			{Lat: 0, Lon: 0},
			{Lat: 0, Lon: 10},
			{Lat: 10, Lon: 10},
			{Lat: 10, Lon: 0},
		},
		MinAltM: 0,
		MaxAltM: 100,
	}
}

func TestWeightCombinesBatteryAndWorkload(t *testing.T) {
	assert.InDelta(t, 0.6, Weight(1.0, 1.0), 1e-9)
	assert.InDelta(t, 1.0, Weight(1.0, 0.0), 1e-9)
	assert.InDelta(t, 0.0, Weight(0.0, 1.0), 1e-9)
}

func TestEqualAreaDividesIntoEqualStrips(t *testing.T) {
	areas := EqualArea(squareArea(), 4)
	require.Len(t, areas, 4)

	for i, a := range areas {
		box := geo.BoundingBoxOf(toGeoPoints(a.Vertices), a.MinAltM, a.MaxAltM)
		assert.InDelta(t, 2.5, box.MaxLat-box.MinLat, 1e-9, "strip %d height", i)
		assert.Equal(t, 0.0, box.MinLon)
		assert.Equal(t, 10.0, box.MaxLon)
	}
	// Strips must tile the bounding box contiguously, lowest to highest.
	firstBox := geo.BoundingBoxOf(toGeoPoints(areas[0].Vertices), 0, 0)
	lastBox := geo.BoundingBoxOf(toGeoPoints(areas[3].Vertices), 0, 0)
	assert.InDelta(t, 0.0, firstBox.MinLat, 1e-9)
	assert.InDelta(t, 10.0, lastBox.MaxLat, 1e-9)
}

func TestEqualAreaNonPositiveCount(t *testing.T) {
	assert.Nil(t, EqualArea(squareArea(), 0))
	assert.Nil(t, EqualArea(squareArea(), -1))
}

func TestCapabilityWeightedProportionsExtentToWeight(t *testing.T) {
	subs := CapabilityWeighted(squareArea(), []float64{1, 3})
	require.Len(t, subs, 2)

	box0 := geo.BoundingBoxOf(toGeoPoints(subs[0].Area.Vertices), 0, 0)
	box1 := geo.BoundingBoxOf(toGeoPoints(subs[1].Area.Vertices), 0, 0)

	extent0 := box0.MaxLat - box0.MinLat
	extent1 := box1.MaxLat - box1.MinLat
	assert.InDelta(t, 2.5, extent0, 1e-9)
	assert.InDelta(t, 7.5, extent1, 1e-9)
	assert.InDelta(t, extent1, extent0*3, 1e-9)
}

func TestCapabilityWeightedZeroTotalDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		CapabilityWeighted(squareArea(), []float64{0, 0})
	})
}

func TestVoronoiAssignsEverySampleToNearestWeightedUAV(t *testing.T) {
	area := squareArea()
	positions := []geo.Point{
		{Lat: 1, Lon: 1},
		{Lat: 9, Lon: 9},
	}
	weights := []float64{1, 1}

	assignments := Voronoi(area, positions, weights)
	require.NotEmpty(t, assignments)

	seen := make(map[int]bool)
	for _, a := range assignments {
		seen[a.UAVIndex] = true
		assert.NotEmpty(t, a.Area.Vertices)
	}
	// Both UAVs are symmetric around the diagonal, so both should claim
	// some share of the polygon.
	assert.True(t, seen[0])
	assert.True(t, seen[1])
}

func TestVoronoiHigherWeightClaimsMoreOfASharedRegion(t *testing.T) {
	area := squareArea()
	// Co-located UAVs: the heavier-weighted one should absorb every sample.
	positions := []geo.Point{
		{Lat: 5, Lon: 5},
		{Lat: 5, Lon: 5},
	}
	weights := []float64{1, 100}

	assignments := Voronoi(area, positions, weights)
	require.Len(t, assignments, 1)
	assert.Equal(t, 1, assignments[0].UAVIndex)
}
