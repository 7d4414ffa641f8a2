package env

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/san-kum/pdlander/internal/physics"
)

var (
	skyColour     = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	moonColour    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	landerColour  = color.RGBA{R: 128, G: 102, B: 230, A: 255}
	legColour     = color.RGBA{R: 77, G: 77, B: 128, A: 255}
	flagColour    = color.RGBA{R: 204, G: 204, B: 0, A: 255}
	flameColour   = color.RGBA{R: 255, G: 140, B: 30, A: 255}
	thrusterColor = color.RGBA{R: 255, G: 220, B: 120, A: 255}
)

// WorldToPixel maps world coordinates to image coordinates.
func WorldToPixel(x, y float64) (float64, float64) {
	return x * physics.Scale, ViewportH - y*physics.Scale
}

func renderFrame(l *LunarLander) image.Image {
	dc := gg.NewContext(int(ViewportW), int(ViewportH))
	dc.SetColor(skyColour)
	dc.Clear()

	// Ground
	t := l.terrain
	dc.MoveTo(WorldToPixel(0, 0))
	for i := range t.X {
		dc.LineTo(WorldToPixel(t.X[i], t.Y[i]))
	}
	dc.LineTo(WorldToPixel(WorldW, 0))
	dc.ClosePath()
	dc.SetColor(moonColour)
	dc.Fill()

	// Helipad flags
	dc.SetLineWidth(1)
	for _, fx := range []float64{t.PadLeft, t.PadRight} {
		x0, y0 := WorldToPixel(fx, t.HelipadY)
		y1 := y0 - 50
		dc.SetColor(moonColour)
		dc.DrawLine(x0, y0, x0, y1)
		dc.Stroke()
		dc.MoveTo(x0, y1)
		dc.LineTo(x0, y1+10)
		dc.LineTo(x0+25, y1+5)
		dc.ClosePath()
		dc.SetColor(flagColour)
		dc.Fill()
	}

	if l.x == nil {
		return dc.Image()
	}

	// Legs
	dc.SetLineWidth(3)
	dc.SetColor(legColour)
	for i, f := range l.dyn.Feet(l.x) {
		side := float64(2*i - 1)
		ax, ay := WorldToPixel(physics.ToWorld(l.x, side*physics.LegAway*0.5, 0))
		fx, fy := WorldToPixel(f[0], f[1])
		dc.DrawLine(ax, ay, fx, fy)
		dc.Stroke()
	}

	// Hull
	for i, p := range l.dyn.Hull(l.x) {
		px, py := WorldToPixel(p[0], p[1])
		if i == 0 {
			dc.MoveTo(px, py)
		} else {
			dc.LineTo(px, py)
		}
	}
	dc.ClosePath()
	dc.SetColor(landerColour)
	dc.Fill()

	// Engine plumes
	if l.mPower > 0 {
		drawPlume(dc, l, 0, -10.0/physics.Scale, 0, -1, l.mPower, flameColour)
	}
	if l.sPower > 0 {
		// Exhaust leaves opposite to the push.
		drawPlume(dc, l, -l.sDir*17.0/physics.Scale, 14.0/physics.Scale, -l.sDir, 0, l.sPower, thrusterColor)
	}

	return dc.Image()
}

// drawPlume draws a flame from body point (px, py) pointing along (dx, dy)
// in body coordinates, scaled by power.
func drawPlume(dc *gg.Context, l *LunarLander, px, py, dx, dy, power float64, c color.Color) {
	length := 0.6 * power
	x0, y0 := WorldToPixel(physics.ToWorld(l.x, px-0.1*dy, py+0.1*dx))
	x1, y1 := WorldToPixel(physics.ToWorld(l.x, px+0.1*dy, py-0.1*dx))
	tx, ty := WorldToPixel(physics.ToWorld(l.x, px+dx*length, py+dy*length))
	dc.MoveTo(x0, y0)
	dc.LineTo(x1, y1)
	dc.LineTo(tx, ty)
	dc.ClosePath()
	dc.SetColor(c)
	dc.Fill()
}
