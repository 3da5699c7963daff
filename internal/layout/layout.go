// Package layout places a day's waypoint cards on a free-form canvas.
//
// Positions are a pure function of waypoint count and container width until
// the user drags a card; dragged positions are kept and only clamped.
package layout

import (
	"math"

	"github.com/samber/lo"
)

// Card and grid geometry, in canvas pixels.
const (
	CardWidth     = 200.0
	CardHeight    = 120.0
	Gutter        = 48.0
	Margin        = 24.0
	RowGap        = 180.0
	DefaultHeight = 480.0
	MaxColumns    = 3
)

// Position is a card's top-left corner.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Unplaced marks a card Ensure must place on the default grid.
var Unplaced = Position{X: math.NaN(), Y: math.NaN()}

// Columns returns how many cards fit side by side in the container.
func Columns(containerWidth float64) int {
	usable := containerWidth - 2*Margin
	fit := int(math.Floor(usable / (CardWidth + Gutter)))
	return lo.Clamp(fit, 1, MaxColumns)
}

// Default lays out n cards as a serpentine grid: even rows run left to
// right, odd rows right to left, so consecutive cards are always adjacent.
func Default(n int, containerWidth float64) []Position {
	if n <= 0 {
		return []Position{}
	}

	columns := Columns(containerWidth)
	gap := columnGap(columns, containerWidth)

	positions := make([]Position, n)
	for i := range positions {
		positions[i] = slot(i, columns, gap)
	}
	return positions
}

// Ensure returns exactly n positions. Existing entries are kept (clamped),
// missing or Unplaced ones come from the default grid and extras are dropped.
func Ensure(existing []Position, n int, containerWidth float64) []Position {
	if n <= 0 {
		return []Position{}
	}

	columns := Columns(containerWidth)
	gap := columnGap(columns, containerWidth)

	positions := make([]Position, n)
	for i := range positions {
		if i < len(existing) && Valid(existing[i]) {
			positions[i] = Clamp(existing[i], containerWidth)
			continue
		}
		positions[i] = slot(i, columns, gap)
	}
	return positions
}

// Reset discards all positions and returns the default grid.
func Reset(n int, containerWidth float64) []Position {
	return Default(n, containerWidth)
}

// Clamp keeps a card inside the container horizontally and below the top
// margin. There is no lower bound; the canvas grows downward.
func Clamp(pos Position, containerWidth float64) Position {
	maxX := max(Margin, containerWidth-CardWidth-Margin)
	return Position{
		X: lo.Clamp(pos.X, Margin, maxX),
		Y: max(pos.Y, Margin),
	}
}

// CanvasHeight is the rendered container height needed to show every card.
func CanvasHeight(positions []Position) float64 {
	height := DefaultHeight
	for _, p := range positions {
		height = max(height, p.Y+CardHeight+Margin)
	}
	return height
}

func columnGap(columns int, containerWidth float64) float64 {
	if columns <= 1 {
		return 0
	}
	usable := containerWidth - 2*Margin
	return max(0, (usable-CardWidth)/float64(columns-1))
}

func slot(i, columns int, gap float64) Position {
	row := i / columns
	column := i % columns
	if row%2 == 1 {
		column = columns - 1 - column
	}
	return Position{
		X: Margin + float64(column)*gap,
		Y: Margin + float64(row)*RowGap,
	}
}

// Valid reports whether p has finite coordinates.
func Valid(p Position) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
