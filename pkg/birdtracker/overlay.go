package birdtracker

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// tierColor spreads the tiers evenly around the hue wheel.
func tierColor(t Tier) color.RGBA {
	hue := math.Mod(float64(int(t)-1)*90+30, 360)
	r, g, b := colorful.Hsv(hue, 0.85, 1).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// RenderDetections draws the stabilized frame with the tracked contour and one
// circle per detection, coloured by tier.
func RenderDetections(index int, st Stabilized, records map[Tier][]DetectionRecord) *image.RGBA {
	f := st.Frame
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	diskColor := color.RGBA{R: 80, G: 200, B: 255, A: 255}
	for _, p := range st.Tracked {
		img.SetRGBA(p.X, p.Y, diskColor)
	}

	face := basicfont.Face7x13
	for _, tier := range AllTiers {
		c := tierColor(tier)
		for _, r := range records[tier] {
			cx, cy := int(math.Round(float64(r.X))), int(math.Round(float64(r.Y)))
			radius := max(int(math.Ceil(float64(r.Radius)))+3, 4)
			drawCircle(img, cx, cy, radius, c)
			drawText(img, face, fmt.Sprint(int(tier)), cx+radius+2, cy+4, c)
		}
	}

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	drawText(img, face, fmt.Sprintf("frame %d  %s", index, st.Touch), 6, 16, white)
	drawLegend(img, face)
	return img
}

func drawLegend(img *image.RGBA, face font.Face) {
	y := img.Bounds().Dy() - 8
	x := 6
	for _, tier := range AllTiers {
		label := tier.String()
		drawText(img, face, label, x, y, tierColor(tier))
		x += font.MeasureString(face, label).Round() + 10
	}
}

// FrameDumper writes an annotated image per completed cycle. It is meant to be
// installed as the coordinator's cycle observer.
type FrameDumper struct {
	dir    string
	width  int
	logger *slog.Logger
}

// NewFrameDumper creates dir if needed. A positive width rescales the output.
func NewFrameDumper(dir string, width int, logger *slog.Logger) (*FrameDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug frame directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FrameDumper{dir: dir, width: width, logger: logger}, nil
}

// Observe implements CycleObserver.
func (d *FrameDumper) Observe(c Cycle, results []StageResult) {
	if c.Current == nil || !c.Current.Valid {
		return
	}
	merged := make(map[Tier][]DetectionRecord)
	for _, res := range results {
		for t, recs := range res.Records {
			merged[t] = append(merged[t], recs...)
		}
	}
	if err := d.Write(c.Index, c.Current.Stabilized, merged); err != nil {
		d.logger.Warn("debug frame not written", slog.Int("frame", c.Index), slog.Any("error", err))
	}
}

// Write renders and saves one frame as PNG.
func (d *FrameDumper) Write(index int, st Stabilized, records map[Tier][]DetectionRecord) error {
	var out image.Image = RenderDetections(index, st, records)
	if d.width > 0 && d.width != st.Frame.Width {
		out = imaging.Resize(out, d.width, 0, imaging.Lanczos)
	}
	path := filepath.Join(d.dir, fmt.Sprintf("frame_%06d.png", index))
	if err := imaging.Save(out, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCircle draws a circle outline using midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}
