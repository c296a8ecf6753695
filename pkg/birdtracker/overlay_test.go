package birdtracker

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestRenderDetections(t *testing.T) {
	f := NewFrame(80, 60)
	f.Set(2, 30, 90)
	st := Stabilized{Frame: f, Tracked: Contour{{10, 30}, {11, 30}}}
	records := map[Tier][]DetectionRecord{Tier2: {{Frame: 1, X: 40, Y: 30, Radius: 2}}}

	img := RenderDetections(1, st, records)
	if img.Bounds() != image.Rect(0, 0, 80, 60) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if c := img.RGBAAt(2, 30); c.R != 90 || c.G != 90 || c.B != 90 {
		t.Fatalf("background pixel = %+v, want gray 90", c)
	}
	// radius max(ceil(2)+3, 4) = 5, so the circle passes through (45, 30).
	if c := img.RGBAAt(45, 30); c != tierColor(Tier2) {
		t.Fatalf("circle pixel = %+v, want %+v", c, tierColor(Tier2))
	}
	if c := img.RGBAAt(10, 30); c.G != 200 {
		t.Fatalf("tracked contour pixel = %+v", c)
	}
}

func TestTierColorsDistinct(t *testing.T) {
	seen := map[[3]uint8]Tier{}
	for _, tier := range AllTiers {
		c := tierColor(tier)
		key := [3]uint8{c.R, c.G, c.B}
		if other, ok := seen[key]; ok {
			t.Fatalf("%s and %s share colour %v", tier, other, key)
		}
		seen[key] = tier
	}
}

func TestFrameDumperObserve(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	dumper, err := NewFrameDumper(dir, 40, nil)
	if err != nil {
		t.Fatalf("NewFrameDumper returned error: %v", err)
	}
	slot := &Slot{Index: 12, Stabilized: Stabilized{Frame: NewFrame(80, 60)}, Valid: true}
	dumper.Observe(Cycle{Index: 12, Current: slot}, []StageResult{
		{Records: map[Tier][]DetectionRecord{Tier1: {{Frame: 12, X: 20, Y: 20, Radius: 1}}}},
		{Records: map[Tier][]DetectionRecord{Tier4: {{Frame: 12, X: 60, Y: 40, Radius: 1}}}},
	})

	path := filepath.Join(dir, "frame_000012.png")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("frame not written: %v", err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open written frame: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Fatalf("written frame is %v, want 40x30", img.Bounds())
	}

	dumper.Observe(Cycle{Index: 13, Current: &Slot{}}, nil)
	if _, err := os.Stat(filepath.Join(dir, "frame_000013.png")); !os.IsNotExist(err) {
		t.Fatalf("invalid slot was rendered: %v", err)
	}
}
