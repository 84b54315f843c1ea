package viz

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
)

const (
	renderWidth  = 640
	renderHeight = 400
	renderMargin = 40
)

var (
	bgColor     = color.RGBA{255, 255, 255, 255}
	axisColor   = color.RGBA{60, 60, 60, 255}
	seriesColor = color.RGBA{0, 120, 200, 255}
)

// RenderPNG rasterizes a figure to a base64-encoded PNG. It is the fallback
// capture path for imperative plots; declarative figures export JSON instead.
func RenderPNG(f *Figure) (string, error) {
	if f == nil || len(f.Values) == 0 {
		return "", fmt.Errorf("nothing to render")
	}
	img := image.NewRGBA(image.Rect(0, 0, renderWidth, renderHeight))
	fill(img, bgColor)

	x0, y0 := renderMargin, renderHeight-renderMargin
	x1, y1 := renderWidth-renderMargin, renderMargin
	hline(img, x0, x1, y0, axisColor)
	vline(img, x0, y1, y0, axisColor)

	lo, hi := bounds(f.Values)
	if hi == lo {
		hi = lo + 1
	}
	plotW := x1 - x0
	plotH := y0 - y1
	n := len(f.Values)

	toY := func(v float64) int {
		return y0 - int(math.Round((v-lo)/(hi-lo)*float64(plotH)))
	}

	switch f.Kind {
	case KindBar:
		slot := plotW / n
		barW := slot * 3 / 4
		if barW < 1 {
			barW = 1
		}
		for i, v := range f.Values {
			bx := x0 + i*slot + (slot-barW)/2
			by := toY(v)
			for x := bx; x < bx+barW; x++ {
				vline(img, x, by, y0, seriesColor)
			}
		}
	default: // line and scatter
		step := float64(plotW) / math.Max(float64(n-1), 1)
		prevX, prevY := 0, 0
		for i, v := range f.Values {
			px := x0 + int(math.Round(float64(i)*step))
			py := toY(v)
			dot(img, px, py, seriesColor)
			if f.Kind == KindLine && i > 0 {
				line(img, prevX, prevY, px, py, seriesColor)
			}
			prevX, prevY = px, py
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func bounds(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	if lo > 0 {
		lo = 0 // anchor bars at zero
	}
	return lo, hi
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func hline(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

func dot(img *image.RGBA, x, y int, c color.RGBA) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			img.SetRGBA(x+dx, y+dy, c)
		}
	}
}

// line draws with integer Bresenham stepping.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		if 2*e >= dy {
			e += dy
			x0 += sx
		}
		if 2*e <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
