// Package geo holds the geometry primitives shared by the area splitter and
// the coordinator: Haversine distance, even-odd point-in-polygon, bounding
// boxes, and lateral waypoint offsetting.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used throughout the system.
const EarthRadiusMeters = 6371000.0

// MetersPerDegreeLat is the conversion used by the source's detour and
// obstacle-avoidance math (1 degree of latitude ~= 111,000 m).
const MetersPerDegreeLat = 111000.0

// Point is a geographic point. Alt is in meters and is ignored by the
// planar helpers below (Haversine, polygon test) — it only matters for
// altitude-band inheritance in the splitter.
type Point struct {
	Lat float64
	Lon float64
	Alt float64
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(h))
	return c * EarthRadiusMeters
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	MinAlt, MaxAlt float64
}

func (b BoundingBox) Area() float64 {
	return (b.MaxLat - b.MinLat) * (b.MaxLon - b.MinLon)
}

// BoundingBoxOf computes the bounding box of a polygon (or any point set),
// inheriting the given altitude band.
func BoundingBoxOf(points []Point, minAlt, maxAlt float64) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{MinAlt: minAlt, MaxAlt: maxAlt}
	}
	bb := BoundingBox{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLon: points[0].Lon, MaxLon: points[0].Lon,
		MinAlt: minAlt, MaxAlt: maxAlt,
	}
	for _, p := range points[1:] {
		if p.Lat < bb.MinLat {
			bb.MinLat = p.Lat
		}
		if p.Lat > bb.MaxLat {
			bb.MaxLat = p.Lat
		}
		if p.Lon < bb.MinLon {
			bb.MinLon = p.Lon
		}
		if p.Lon > bb.MaxLon {
			bb.MaxLon = p.Lon
		}
	}
	return bb
}

// PointInPolygon is the even-odd ray-cast test used by the Voronoi splitter
// to discard grid samples outside the search polygon.
func PointInPolygon(p Point, polygon []Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) {
			lonIntersect := (pj.Lon-pi.Lon)*(p.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lon
			if p.Lon < lonIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// OffsetLateral offsets a point by distanceMeters in a cardinal-ish
// direction (north/south via latOffset sign), converting meters to degrees
// with the same constants the path replanner uses: 1 deg lat ~= 111,000 m
// and longitude scaled by cos(latitude).
func OffsetLateral(p Point, distanceMeters float64) Point {
	latOffset := distanceMeters / MetersPerDegreeLat
	lonOffset := distanceMeters / (MetersPerDegreeLat * math.Cos(p.Lat*math.Pi/180))
	return Point{Lat: p.Lat + latOffset, Lon: p.Lon + lonOffset, Alt: p.Alt}
}

// PointOnLine returns the point at distance d from `from`, along the ray
// from `through` to `from` extended beyond `from` — used by dynamic
// obstacle avoidance to place an avoidance waypoint on the line from the
// obstacle through the current position.
func PointOnLine(through, from Point, distanceMeters float64) Point {
	dLat := from.Lat - through.Lat
	dLon := from.Lon - through.Lon
	norm := math.Hypot(dLat, dLon)
	if norm == 0 {
		return from
	}
	// Convert the desired meter distance into the same degree units as
	// dLat/dLon so the unit vector scaling is consistent.
	degDist := distanceMeters / MetersPerDegreeLat
	return Point{
		Lat: from.Lat + (dLat/norm)*degDist,
		Lon: from.Lon + (dLon/norm)*degDist,
		Alt: from.Alt,
	}
}

// Centroid returns the arithmetic mean point of a polygon's vertices — used
// by the proximity assigner strategy.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumLat, sumLon, sumAlt float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
		sumAlt += p.Alt
	}
	n := float64(len(points))
	return Point{Lat: sumLat / n, Lon: sumLon / n, Alt: sumAlt / n}
}
