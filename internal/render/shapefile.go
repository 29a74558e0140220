package render

import (
	"errors"
	"fmt"

	"github.com/jonas-p/go-shp"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrEmptyShapefile is returned when a shapefile holds no drawable shape.
var ErrEmptyShapefile = errors.New("shapefile is empty")

// Point is a lon/lat coordinate.
type Point struct {
	Lon, Lat float64
}

// Overlay is a set of polylines drawn beneath the station markers, such as
// a watershed outline or river flowlines.
type Overlay struct {
	Name  string
	Color drawing.Color
	Width float64
	Paths [][]Point
}

// Overlay styles for the two layers the station map knows.
var (
	WatershedStyle = Overlay{Name: "Watershed", Color: colorGreen, Width: 1}
	FlowlineStyle  = Overlay{Name: "Flowlines", Color: colorBlue, Width: 0.5}
)

// LoadOverlay reads every polyline and polygon ring of a shapefile into an
// overlay with the given style. Coordinates are taken as lon/lat; the file
// must already be in a geographic CRS.
func LoadOverlay(path string, style Overlay) (Overlay, error) {
	r, err := shp.Open(path)
	if err != nil {
		return Overlay{}, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	out := style
	out.Paths = nil
	for r.Next() {
		_, shape := r.Shape()
		out.Paths = append(out.Paths, shapePaths(shape)...)
	}
	if err := r.Err(); err != nil {
		return Overlay{}, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	if len(out.Paths) == 0 {
		return Overlay{}, fmt.Errorf("%s: %w", path, ErrEmptyShapefile)
	}
	return out, nil
}

func shapePaths(shape shp.Shape) [][]Point {
	switch s := shape.(type) {
	case *shp.PolyLine:
		return splitParts(s.Parts, s.Points)
	case *shp.Polygon:
		return splitParts(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return splitParts(s.Parts, s.Points)
	case *shp.PolygonZ:
		return splitParts(s.Parts, s.Points)
	default:
		return nil
	}
}

// splitParts cuts a multi-part shape into one path per part.
func splitParts(parts []int32, points []shp.Point) [][]Point {
	paths := make([][]Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		path := make([]Point, 0, end-start)
		for _, p := range points[start:end] {
			path = append(path, Point{Lon: p.X, Lat: p.Y})
		}
		paths = append(paths, path)
	}
	return paths
}
