package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineMetersKnownDistance(t *testing.T) {
	// Roughly 1 degree of latitude along the same meridian.
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 1, Lon: 0}

	dist := HaversineMeters(a, b)
	assert.InDelta(t, 111195.0, dist, 500.0)
}

func TestHaversineMetersSamePoint(t *testing.T) {
	p := Point{Lat: 12.9, Lon: 77.6}
	assert.Equal(t, 0.0, HaversineMeters(p, p))
}

func TestBoundingBoxOf(t *testing.T) {
	points := []Point{
		{Lat: 10, Lon: 20},
		{Lat: 5, Lon: 25},
		{Lat: 15, Lon: 18},
	}
	bb := BoundingBoxOf(points, 0, 100)

	assert.Equal(t, 5.0, bb.MinLat)
	assert.Equal(t, 15.0, bb.MaxLat)
	assert.Equal(t, 18.0, bb.MinLon)
	assert.Equal(t, 25.0, bb.MaxLon)
	assert.Equal(t, 0.0, bb.MinAlt)
	assert.Equal(t, 100.0, bb.MaxAlt)
}

func TestBoundingBoxOfEmpty(t *testing.T) {
	bb := BoundingBoxOf(nil, 1, 2)
	assert.Equal(t, BoundingBox{MinAlt: 1, MaxAlt: 2}, bb)
}

func TestBoundingBoxArea(t *testing.T) {
	bb := BoundingBox{MinLat: 0, MaxLat: 2, MinLon: 0, MaxLon: 3}
	assert.Equal(t, 6.0, bb.Area())
}

func TestPointInPolygonInsideAndOutside(t *testing.T) {
	square := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 10},
		{Lat: 10, Lon: 10},
		{Lat: 10, Lon: 0},
	}

	assert.True(t, PointInPolygon(Point{Lat: 5, Lon: 5}, square))
	assert.False(t, PointInPolygon(Point{Lat: 20, Lon: 20}, square))
}

func TestPointInPolygonDegenerate(t *testing.T) {
	assert.False(t, PointInPolygon(Point{Lat: 1, Lon: 1}, []Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}))
}

func TestOffsetLateralPreservesAltitude(t *testing.T) {
	p := Point{Lat: 10, Lon: 20, Alt: 50}
	offset := OffsetLateral(p, 1000)

	assert.Equal(t, p.Alt, offset.Alt)
	assert.NotEqual(t, p.Lat, offset.Lat)
	assert.NotEqual(t, p.Lon, offset.Lon)

	dist := HaversineMeters(p, Point{Lat: offset.Lat, Lon: p.Lon})
	assert.InDelta(t, 1000.0, dist, 50.0)
}

func TestPointOnLineZeroNormReturnsFrom(t *testing.T) {
	p := Point{Lat: 1, Lon: 1, Alt: 5}
	require.Equal(t, p, PointOnLine(p, p, 100))
}

func TestPointOnLineProjectsAlongRay(t *testing.T) {
	through := Point{Lat: 0, Lon: 0}
	from := Point{Lat: 1, Lon: 0}

	got := PointOnLine(through, from, MetersPerDegreeLat)
	assert.InDelta(t, 2.0, got.Lat, 1e-6)
	assert.InDelta(t, 0.0, got.Lon, 1e-6)
}

func TestCentroidAverages(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0, Alt: 0},
		{Lat: 10, Lon: 10, Alt: 20},
	}
	c := Centroid(points)
	assert.Equal(t, 5.0, c.Lat)
	assert.Equal(t, 5.0, c.Lon)
	assert.Equal(t, 10.0, c.Alt)
}

func TestCentroidEmpty(t *testing.T) {
	assert.Equal(t, Point{}, Centroid(nil))
}

func TestHaversineMetersQuarterMeridian(t *testing.T) {
	// Equator to pole is ~1/4 of Earth's circumference.
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 90, Lon: 0}
	quarterCircumference := math.Pi / 2 * EarthRadiusMeters
	assert.InDelta(t, quarterCircumference, HaversineMeters(a, b), 1.0)
}
