package journey

import (
	"encoding/json"
	"math"
)

const earthRadiusKm = 6371.0

// Point is a geographic coordinate in lng/lat order, matching GeoJSON
// position order.
type Point struct {
	Lng float64
	Lat float64
}

// lineString is the GeoJSON geometry persisted on the owning row.
type lineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// encodeLineString marshals an ordered polyline as a GeoJSON LineString.
func encodeLineString(points []Point) ([]byte, error) {
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.Lng, p.Lat}
	}
	return json.Marshal(lineString{Type: "LineString", Coordinates: coords})
}

// pathLengthKm computes the polyline length. Each segment is measured in
// an equirectangular projection centered on the segment, which is
// length-preserving at the sub-kilometer scales device pings produce.
func pathLengthKm(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += segmentKm(points[i-1], points[i])
	}
	return total
}

func segmentKm(a, b Point) float64 {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180 * math.Cos(midLat)
	return earthRadiusKm * math.Sqrt(dLat*dLat+dLng*dLng)
}
