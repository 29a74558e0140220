// Package render draws station reports as PNG charts: the hydrograph with
// its historical banding, the exceedance scatter, and the station map.
// Styling lives only here; the domain types carry no presentation.
package render

import (
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

var (
	colorGreen  = drawing.Color{R: 40, G: 167, B: 69, A: 255}
	colorYellow = drawing.Color{R: 255, G: 193, B: 7, A: 255}
	colorOrange = drawing.Color{R: 253, G: 126, B: 20, A: 255}
	colorRed    = drawing.Color{R: 220, G: 53, B: 69, A: 255}
	colorPurple = drawing.Color{R: 128, G: 0, B: 128, A: 255}
	colorBlack  = drawing.Color{R: 0, G: 0, B: 0, A: 255}
	colorGrey   = drawing.Color{R: 150, G: 150, B: 150, A: 255}
	colorBlue   = drawing.Color{R: 51, G: 102, B: 204, A: 255}
	colorWhite  = drawing.Color{R: 255, G: 255, B: 255, A: 255}

	// Historical band fills, outermost first.
	bandMaxMin = drawing.Color{R: 222, G: 235, B: 247, A: 255}
	band90to10 = drawing.Color{R: 158, G: 202, B: 225, A: 255}
	band75to25 = drawing.Color{R: 107, G: 174, B: 214, A: 255}
)

// LabelColor maps an exceedance label to its plot colour: floor and 2-year
// green, 5 yellow, 10 orange, 20 red, 50 purple, 100 black, anything else
// grey.
func LabelColor(l domain.Label) drawing.Color {
	if l.Kind == domain.LabelFloor {
		return colorGreen
	}
	if l.Kind != domain.LabelExceeds {
		return colorGrey
	}
	switch l.ReturnPeriod {
	case 2:
		return colorGreen
	case 5:
		return colorYellow
	case 10:
		return colorOrange
	case 20:
		return colorRed
	case 50:
		return colorPurple
	case 100:
		return colorBlack
	default:
		return colorGrey
	}
}
