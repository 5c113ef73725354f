// Package picker maintains the set of hold positions selected on a wall
// photo and converts them between display and native image coordinates.
package picker

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/climbinsight/climbinsight-go/pkg/types"
)

// DefaultThreshold is the per-axis pixel distance within which a click
// toggles an existing point off instead of adding a new one
const DefaultThreshold = 10.0

// markerRadius is the radius of the overlay circles drawn on previews
const markerRadius = 4

// PointSet is an ordered set of selected points in display-pixel space.
// Order is insertion order; it only affects visual stacking.
type PointSet struct {
	points    []types.Point
	threshold float64
}

// New creates an empty point set with the default toggle threshold
func New() *PointSet {
	return NewWithThreshold(DefaultThreshold)
}

// NewWithThreshold creates an empty point set with a custom toggle threshold
func NewWithThreshold(threshold float64) *PointSet {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &PointSet{threshold: threshold}
}

// Toggle records a click at (x, y). A click within the threshold of an
// existing point removes that point; otherwise the click is appended.
// The new point list is returned.
func (ps *PointSet) Toggle(x, y float64) []types.Point {
	for i, p := range ps.points {
		if math.Abs(p.X-x) < ps.threshold && math.Abs(p.Y-y) < ps.threshold {
			ps.points = append(ps.points[:i], ps.points[i+1:]...)
			return ps.Points()
		}
	}
	ps.points = append(ps.points, types.Point{X: x, Y: y})
	return ps.Points()
}

// Points returns a copy of the current point list in insertion order
func (ps *PointSet) Points() []types.Point {
	out := make([]types.Point, len(ps.points))
	copy(out, ps.points)
	return out
}

// Len returns the number of selected points
func (ps *PointSet) Len() int {
	return len(ps.points)
}

// Clear removes all points
func (ps *PointSet) Clear() {
	ps.points = nil
}

// Rescale converts points from display-pixel space to the image's native
// pixel space using a uniform per-axis scale factor. Zero or negative
// display dimensions fall back to 1 to avoid division by zero.
func Rescale(points []types.Point, displayW, displayH, naturalW, naturalH float64) []types.Point {
	if displayW <= 0 {
		displayW = 1
	}
	if displayH <= 0 {
		displayH = 1
	}
	out := make([]types.Point, len(points))
	for i, p := range points {
		out[i] = types.Point{
			X: p.X * (naturalW / displayW),
			Y: p.Y * (naturalH / displayH),
		}
	}
	return out
}

// RenderOverlay draws a red circle marker at every point onto a copy of
// the preview image. Points are expected in the image's own pixel space.
func RenderOverlay(img image.Image, points []types.Point) image.Image {
	overlay := imaging.Clone(img)
	marker := color.NRGBA{R: 255, A: 255}
	for _, p := range points {
		drawCircle(overlay, int(p.X+0.5), int(p.Y+0.5), markerRadius, marker)
	}
	return overlay
}

// drawCircle fills a circle of the given radius, clipped to image bounds
func drawCircle(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	bounds := img.Bounds()
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			x, y := cx+dx, cy+dy
			if image.Pt(x, y).In(bounds) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}
