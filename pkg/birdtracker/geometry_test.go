package birdtracker

import (
	"image"
	"math"
	"testing"
)

func TestContourCentroid(t *testing.T) {
	square := Contour{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	got := contourCentroid(square)
	if math.Abs(got.X-5) > 1e-9 || math.Abs(got.Y-5) > 1e-9 {
		t.Fatalf("square centroid = %+v, want (5, 5)", got)
	}

	line := Contour{{2, 4}, {6, 4}}
	got = contourCentroid(line)
	if got.X != 4 || got.Y != 4 {
		t.Fatalf("line centroid = %+v, want (4, 4)", got)
	}

	if got := contourCentroid(nil); got != (Point2d{}) {
		t.Fatalf("empty centroid = %+v", got)
	}
}

func TestLargestContour(t *testing.T) {
	small := Contour{{0, 0}, {3, 0}, {3, 3}, {0, 3}}
	large := Contour{{10, 10}, {30, 10}, {30, 30}, {10, 30}}
	flat := Contour{{5, 5}, {8, 5}}
	if got := largestContour([]Contour{small, flat, large}); got != 2 {
		t.Fatalf("largestContour = %d, want 2", got)
	}
	if got := largestContour([]Contour{flat}); got != -1 {
		t.Fatalf("largestContour of degenerate set = %d, want -1", got)
	}
	if got := largestContour(nil); got != -1 {
		t.Fatalf("largestContour(nil) = %d, want -1", got)
	}
}

func TestTranslateContour(t *testing.T) {
	c := Contour{{1, 2}, {3, 4}}
	got := translateContour(c, image.Pt(-1, 10))
	if got[0] != image.Pt(0, 12) || got[1] != image.Pt(2, 14) {
		t.Fatalf("translateContour = %v", got)
	}
	if c[0] != image.Pt(1, 2) {
		t.Fatal("translateContour modified its input")
	}
}

func TestMinSquaredDistance(t *testing.T) {
	c := Contour{{0, 0}, {10, 0}}
	if got := minSquaredDistance(Point2d{X: 3, Y: 4}, c); got != 25 {
		t.Fatalf("minSquaredDistance = %v, want 25", got)
	}
	if got := minSquaredDistance(Point2d{}, nil); !math.IsInf(got, 1) {
		t.Fatalf("minSquaredDistance to empty contour = %v, want +Inf", got)
	}
}
