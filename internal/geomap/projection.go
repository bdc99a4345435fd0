package geomap

import "math"

// maxProjectableLat keeps the Mercator projection away from the poles, where
// the y term diverges.
const maxProjectableLat = 85.0

// Point is a projected canvas coordinate.
type Point struct {
	X float64
	Y float64
}

// Project maps (lat, lon) onto a w×h canvas with an equirectangular
// projection. Latitude is clamped to ±85° so both projections behave at the
// same inputs.
func Project(lat, lon, w, h float64) Point {
	lat = clampLat(lat)
	return Point{
		X: (lon + 180) / 360 * w,
		Y: (90 - lat) / 180 * h,
	}
}

// ProjectMercator maps (lat, lon) onto a w×h canvas with a spherical
// Mercator projection, normalized so the ±85° band spans the full height.
func ProjectMercator(lat, lon, w, h float64) Point {
	lat = clampLat(lat)
	yMax := mercatorY(maxProjectableLat)
	y := mercatorY(lat)
	return Point{
		X: (lon + 180) / 360 * w,
		Y: (yMax - y) / (2 * yMax) * h,
	}
}

// Projector maps geographic coordinates onto a w×h canvas.
type Projector func(lat, lon, w, h float64) Point

// ProjectorFor selects a projection by name. Anything other than "mercator"
// gets the equirectangular default.
func ProjectorFor(name string) Projector {
	if name == "mercator" {
		return ProjectMercator
	}
	return Project
}

func mercatorY(lat float64) float64 {
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

func clampLat(lat float64) float64 {
	if lat > maxProjectableLat {
		return maxProjectableLat
	}
	if lat < -maxProjectableLat {
		return -maxProjectableLat
	}
	return lat
}
