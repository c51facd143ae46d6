// Package geo contains pure geographic computation helpers: great-circle
// distance, linear ETA, and map-region fitting. All functions are total.
package geo

import (
	"math"
	"time"

	"mediroute/internal/types"
)

const earthRadiusKm = 6371.0

// Region is a map viewport: a center point plus latitude/longitude spans
// in decimal degrees.
type Region struct {
	Center  types.Point `json:"center"`
	LatSpan float64     `json:"lat_span"`
	LngSpan float64     `json:"lng_span"`
}

// DistanceKm returns the great-circle (haversine) distance in kilometres
// between two points specified in decimal degrees.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// ETA is a linear travel-time estimate. A non-positive speed yields zero
// rather than a division blow-up.
func ETA(distanceKm, avgSpeedKmh float64) time.Duration {
	if avgSpeedKmh <= 0 || distanceKm <= 0 {
		return 0
	}
	hours := distanceKm / avgSpeedKmh
	return time.Duration(hours * float64(time.Hour))
}

// BoundingRegion returns a region covering all given points, widened by the
// fractional padding and clamped to minSpanDeg on both axes so single-point
// or near-colocated inputs never produce a degenerate viewport. An empty
// input yields a minimum-span region centered on the origin.
func BoundingRegion(points []types.Point, padding, minSpanDeg float64) Region {
	if minSpanDeg <= 0 {
		minSpanDeg = 0.01
	}
	if len(points) == 0 {
		return Region{LatSpan: minSpanDeg, LngSpan: minSpanDeg}
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLng, maxLng := points[0].Lng, points[0].Lng
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLng = math.Min(minLng, p.Lng)
		maxLng = math.Max(maxLng, p.Lng)
	}

	latSpan := (maxLat - minLat) * (1 + padding)
	lngSpan := (maxLng - minLng) * (1 + padding)
	if latSpan < minSpanDeg {
		latSpan = minSpanDeg
	}
	if lngSpan < minSpanDeg {
		lngSpan = minSpanDeg
	}

	return Region{
		Center: types.Point{
			Lat: (minLat + maxLat) / 2,
			Lng: (minLng + maxLng) / 2,
		},
		LatSpan: latSpan,
		LngSpan: lngSpan,
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
