package mountaincar

import (
	"image"
	"math"

	"github.com/fogleman/gg"
)

// hillHeight returns the height of the hill at x position x
func hillHeight(x float64) float64 {
	return math.Sin(3*x)*0.45 + 0.55
}

// Frame renders the current state of the environment as an RGB image
// of the given width and height in pixels
func (m *base) Frame(width, height int) image.Image {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	worldWidth := m.positionBounds.Max - m.positionBounds.Min
	scale := float64(width) / worldWidth
	toScreen := func(x float64) (float64, float64) {
		px := (x - m.positionBounds.Min) * scale
		py := float64(height) - hillHeight(x)*scale*0.9
		return px, py
	}

	// Hill
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(2)
	const points = 100
	for i := 0; i <= points; i++ {
		x := m.positionBounds.Min + worldWidth*float64(i)/points
		px, py := toScreen(x)
		if i == 0 {
			dc.MoveTo(px, py)
		} else {
			dc.LineTo(px, py)
		}
	}
	dc.Stroke()

	// Flag
	if g, ok := m.Task.(*Goal); ok {
		fx, fy := toScreen(g.goalX)
		dc.DrawLine(fx, fy, fx, fy-40)
		dc.Stroke()
		dc.SetRGB(0.8, 0.8, 0)
		dc.MoveTo(fx, fy-40)
		dc.LineTo(fx, fy-30)
		dc.LineTo(fx+20, fy-35)
		dc.ClosePath()
		dc.Fill()
	}

	// Car
	cx, cy := toScreen(m.lastStep.Observation.AtVec(0))
	dc.SetRGB(0.5, 0.5, 0.5)
	dc.DrawCircle(cx, cy-8, 8)
	dc.Fill()

	return dc.Image()
}

// SaveFrame renders the current state of the environment and saves
// it as a PNG image at path
func (m *base) SaveFrame(path string, width, height int) error {
	return gg.SavePNG(path, m.Frame(width, height))
}
