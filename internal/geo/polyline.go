package geo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twpayne/go-polyline"
)

// DecodePolyline decodes a Google encoded polyline into validated points.
func DecodePolyline(encoded string) ([]Point, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	pts := make([]Point, len(coords))
	for i, c := range coords {
		pts[i] = Point{Latitude: c[0], Longitude: c[1]}
	}
	if err := ValidatePoints(pts); err != nil {
		return nil, fmt.Errorf("decoded polyline: %w", err)
	}
	return pts, nil
}

// EncodePolyline encodes points as a Google polyline (5 digit precision).
func EncodePolyline(pts []Point) string {
	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}
