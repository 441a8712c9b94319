// Package splitter implements C5: dividing a mission polygon into
// sub-areas, one per assigned UAV, by one of three methods (§4.3).
package splitter

import (
	"math"

	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
)

const gridSpacingM = 100.0
const epsilon = 1e-6

func toGeoPoints(vertices []models.GeoPoint) []geo.Point {
	out := make([]geo.Point, len(vertices))
	for i, v := range vertices {
		out[i] = geo.Point{Lat: v.Lat, Lon: v.Lon}
	}
	return out
}

// Weight is a per-UAV figure of merit used by the capability-weighted
// and Voronoi methods: 0.6·battery_ratio + 0.4·(1 − workload).
func Weight(batteryRatio, workload float64) float64 {
	return 0.6*batteryRatio + 0.4*(1-workload)
}

// EqualArea divides the polygon's bounding box into n horizontal strips
// of equal latitude extent.
func EqualArea(area models.Area, n int) []models.Area {
	if n <= 0 {
		return nil
	}
	box := geo.BoundingBoxOf(toGeoPoints(area.Vertices), area.MinAltM, area.MaxAltM)
	latStep := (box.MaxLat - box.MinLat) / float64(n)

	out := make([]models.Area, n)
	for i := 0; i < n; i++ {
		lo := box.MinLat + float64(i)*latStep
		hi := lo + latStep
		out[i] = rectangleArea(lo, hi, box.MinLon, box.MaxLon, area.MinAltM, area.MaxAltM)
	}
	return out
}

// CapabilityWeighted divides the bounding box by cumulative UAV weight
// along latitude: a UAV with twice the weight of another gets twice the
// latitude extent.
func CapabilityWeighted(area models.Area, weights []float64) []models.SubArea {
	box := geo.BoundingBoxOf(toGeoPoints(area.Vertices), area.MinAltM, area.MaxAltM)

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		total = epsilon
	}

	out := make([]models.SubArea, len(weights))
	cursor := box.MinLat
	latSpan := box.MaxLat - box.MinLat
	for i, w := range weights {
		extent := latSpan * (w / total)
		lo := cursor
		hi := cursor + extent
		out[i].Area = rectangleArea(lo, hi, box.MinLon, box.MaxLon, area.MinAltM, area.MaxAltM)
		cursor = hi
	}
	return out
}

// VoronoiAssignment is one UAV's share of the sampled grid — every
// sample point inside the polygon whose nearest weighted UAV was this
// one, reduced to a bounding box.
type VoronoiAssignment struct {
	UAVIndex int
	Area     models.Area
}

// Voronoi samples a regular lat/lon grid inside the polygon, assigns each
// sample to the UAV minimizing distance/(weight+epsilon), and returns the
// bounding box of each UAV's group. UAVs that received no samples are
// omitted.
func Voronoi(area models.Area, uavPositions []geo.Point, weights []float64) []VoronoiAssignment {
	polygon := toGeoPoints(area.Vertices)
	box := geo.BoundingBoxOf(polygon, area.MinAltM, area.MaxAltM)

	latStepDeg := gridSpacingM / 111000.0
	midLat := (box.MinLat + box.MaxLat) / 2
	lonStepDeg := gridSpacingM / (111000.0 * math.Cos(midLat*math.Pi/180.0))
	if lonStepDeg <= 0 {
		lonStepDeg = latStepDeg
	}

	groups := make(map[int][]geo.Point)
	for lat := box.MinLat; lat <= box.MaxLat; lat += latStepDeg {
		for lon := box.MinLon; lon <= box.MaxLon; lon += lonStepDeg {
			p := geo.Point{Lat: lat, Lon: lon}
			if !geo.PointInPolygon(p, polygon) {
				continue
			}
			best := -1
			bestCost := math.Inf(1)
			for i, uavPos := range uavPositions {
				w := weights[i]
				if w < 0 {
					w = 0
				}
				cost := geo.HaversineMeters(p, uavPos) / (w + epsilon)
				if cost < bestCost {
					bestCost = cost
					best = i
				}
			}
			if best >= 0 {
				groups[best] = append(groups[best], p)
			}
		}
	}

	out := make([]VoronoiAssignment, 0, len(groups))
	for idx, points := range groups {
		box := geo.BoundingBoxOf(points, area.MinAltM, area.MaxAltM)
		out = append(out, VoronoiAssignment{
			UAVIndex: idx,
			Area: models.Area{
				Vertices: []models.GeoPoint{
					{Lat: box.MinLat, Lon: box.MinLon, Alt: area.MinAltM},
					{Lat: box.MinLat, Lon: box.MaxLon, Alt: area.MinAltM},
					{Lat: box.MaxLat, Lon: box.MaxLon, Alt: area.MinAltM},
					{Lat: box.MaxLat, Lon: box.MinLon, Alt: area.MinAltM},
				},
				MinAltM: area.MinAltM,
				MaxAltM: area.MaxAltM,
			},
		})
	}
	return out
}

func rectangleArea(minLat, maxLat, minLon, maxLon, minAlt, maxAlt float64) models.Area {
	return models.Area{
		Vertices: []models.GeoPoint{
			{Lat: minLat, Lon: minLon, Alt: minAlt},
			{Lat: minLat, Lon: maxLon, Alt: minAlt},
			{Lat: maxLat, Lon: maxLon, Alt: minAlt},
			{Lat: maxLat, Lon: minLon, Alt: minAlt},
		},
		MinAltM: minAlt,
		MaxAltM: maxAlt,
	}
}
