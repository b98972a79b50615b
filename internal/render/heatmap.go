// Package render rasterizes flow fields into heatmap images for the
// renderer binary and the debug endpoint.
package render

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/fogleman/gg"

	"hexhaul/internal/nav"
	"hexhaul/internal/world"
)

// Options controls heatmap rendering.
type Options struct {
	Scale    float64 // Pixels per world unit; 0 targets ~1024px width
	Margin   int     // Pixel border around the map
	DirTicks bool    // Draw flow direction ticks on reachable tiles
	Sources  []int32 // Tiles to ring as goal sources
}

// DefaultOptions returns the renderer's standard settings.
func DefaultOptions() Options {
	return Options{
		Scale:    0,
		Margin:   16,
		DirTicks: true,
	}
}

// Heatmap color ramp stops, dark to bright. Indigo through teal to
// yellow keeps adjacent distances distinguishable across the range.
var rampStops = [3][3]float64{
	{0.10, 0.07, 0.26},
	{0.05, 0.54, 0.52},
	{0.98, 0.90, 0.16},
}

// Blocked and unreachable fills.
var (
	blockedColor     = [3]float64{0.09, 0.09, 0.11}
	unreachableColor = [3]float64{0.28, 0.26, 0.28}
	hatchColor       = [3]float64{0.45, 0.40, 0.44}
	ringColor        = [3]float64{0.95, 0.95, 0.98}
	tickColor        = [3]float64{0.92, 0.92, 0.95}
)

// RenderField draws one goal's distance field over the world grid.
// Tiles the field cannot reach are hatched; blocked tiles are near
// black. A dists slice of the wrong length renders everything as
// unreachable, which is what an unbuilt field looks like.
func RenderField(w *world.World, dists []float32, dirs []int8, opts Options) image.Image {
	size := w.TileSize()
	halfW := math.Sqrt(3) / 2 * size

	minX := -halfW
	maxX := size*math.Sqrt(3)*(float64(w.Cols()-1)+float64(w.Rows()-1)/2) + halfW
	minY := -size
	maxY := size*1.5*float64(w.Rows()-1) + size

	scale := opts.Scale
	if scale <= 0 {
		scale = 1024 / (maxX - minX)
	}
	margin := float64(opts.Margin)

	widthPx := int(math.Ceil((maxX-minX)*scale + 2*margin))
	heightPx := int(math.Ceil((maxY-minY)*scale + 2*margin))
	dc := gg.NewContext(widthPx, heightPx)
	dc.SetRGB(0.04, 0.04, 0.05)
	dc.Clear()

	toPx := func(x, y float64) (float64, float64) {
		return (x-minX)*scale + margin, (y-minY)*scale + margin
	}

	known := len(dists) == w.TileCount()
	maxDist := maxFinite(dists)

	hexR := size * scale
	tileCount := int32(w.TileCount())
	for tile := int32(0); tile < tileCount; tile++ {
		cx, cy := toPx(w.TileCenter(tile))

		switch {
		case !w.Passable(tile):
			hexPath(dc, cx, cy, hexR)
			dc.SetRGB(blockedColor[0], blockedColor[1], blockedColor[2])
			fillSeamless(dc)

		case !known || dists[tile] >= nav.Unreachable:
			hexPath(dc, cx, cy, hexR)
			dc.SetRGB(unreachableColor[0], unreachableColor[1], unreachableColor[2])
			fillSeamless(dc)
			hatchHex(dc, cx, cy, hexR)

		default:
			t := 0.0
			if maxDist > 0 {
				t = float64(dists[tile]) / maxDist
			}
			r, g, b := rampColor(t)
			hexPath(dc, cx, cy, hexR)
			dc.SetRGB(r, g, b)
			fillSeamless(dc)
		}
	}

	if opts.DirTicks && known && len(dirs) == w.TileCount() {
		dc.SetRGB(tickColor[0], tickColor[1], tickColor[2])
		dc.SetLineWidth(1)
		for tile := int32(0); tile < tileCount; tile++ {
			slot := dirs[tile]
			if slot < 0 || !w.Passable(tile) || dists[tile] >= nav.Unreachable {
				continue
			}
			dx, dy := w.DirectionVector(int(slot))
			mag := math.Hypot(float64(dx), float64(dy))
			if mag == 0 {
				continue
			}
			cx, cy := toPx(w.TileCenter(tile))
			ex := cx + float64(dx)/mag*hexR*0.45
			ey := cy + float64(dy)/mag*hexR*0.45
			dc.DrawLine(cx, cy, ex, ey)
			dc.Stroke()
			dc.DrawCircle(ex, ey, hexR*0.08)
			dc.Fill()
		}
	}

	if len(opts.Sources) > 0 {
		dc.SetRGB(ringColor[0], ringColor[1], ringColor[2])
		dc.SetLineWidth(2)
		for _, src := range opts.Sources {
			if src < 0 || src >= tileCount {
				continue
			}
			cx, cy := toPx(w.TileCenter(src))
			dc.DrawCircle(cx, cy, hexR*0.55)
			dc.Stroke()
		}
	}

	return dc.Image()
}

// EncodePNG serializes an image for HTTP responses.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SavePNG writes an image to disk.
func SavePNG(path string, img image.Image) error {
	return gg.SavePNG(path, img)
}

// hexPath traces a pointy-top hexagon centered at (cx, cy).
func hexPath(dc *gg.Context, cx, cy, r float64) {
	for i := 0; i < 6; i++ {
		angle := math.Pi / 180 * (60*float64(i) - 30)
		x := cx + r*math.Cos(angle)
		y := cy + r*math.Sin(angle)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
}

// fillSeamless fills the current path and restrokes its edge in the
// same color so adjacent hexes do not show antialiasing seams.
func fillSeamless(dc *gg.Context) {
	dc.FillPreserve()
	dc.SetLineWidth(1)
	dc.Stroke()
}

// hatchHex overlays diagonal hatching clipped to the hex.
func hatchHex(dc *gg.Context, cx, cy, r float64) {
	hexPath(dc, cx, cy, r)
	dc.Clip()

	dc.SetRGB(hatchColor[0], hatchColor[1], hatchColor[2])
	dc.SetLineWidth(1)
	step := math.Max(3, r/3)
	for off := -2 * r; off <= 2*r; off += step {
		dc.DrawLine(cx-r+off, cy-r, cx+r+off, cy+r)
		dc.Stroke()
	}
	dc.ResetClip()
}

// rampColor interpolates the three-stop ramp at t in [0, 1].
func rampColor(t float64) (r, g, b float64) {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	var lo, hi [3]float64
	var f float64
	if t < 0.5 {
		lo, hi = rampStops[0], rampStops[1]
		f = t * 2
	} else {
		lo, hi = rampStops[1], rampStops[2]
		f = (t - 0.5) * 2
	}
	return lo[0] + (hi[0]-lo[0])*f,
		lo[1] + (hi[1]-lo[1])*f,
		lo[2] + (hi[2]-lo[2])*f
}

// maxFinite returns the largest reachable distance, or 0.
func maxFinite(dists []float32) float64 {
	maxD := 0.0
	for _, d := range dists {
		if d >= nav.Unreachable {
			continue
		}
		if float64(d) > maxD {
			maxD = float64(d)
		}
	}
	return maxD
}
