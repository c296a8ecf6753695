package birdtracker

import (
	"image"
	"math"
)

// Point2d is a sub-pixel position.
type Point2d struct {
	X, Y float64
}

// contourCentroid returns the area centroid of the closed polygon c. Degenerate
// polygons (lines, single points) fall back to the mean of their points.
func contourCentroid(c Contour) Point2d {
	if len(c) == 0 {
		return Point2d{}
	}
	var a, cx, cy float64
	for i := range c {
		p := c[i]
		q := c[(i+1)%len(c)]
		cross := float64(p.X*q.Y - q.X*p.Y)
		a += cross
		cx += float64(p.X+q.X) * cross
		cy += float64(p.Y+q.Y) * cross
	}
	if math.Abs(a) < 1e-9 {
		var sx, sy float64
		for _, p := range c {
			sx += float64(p.X)
			sy += float64(p.Y)
		}
		n := float64(len(c))
		return Point2d{X: sx / n, Y: sy / n}
	}
	return Point2d{X: cx / (3 * a), Y: cy / (3 * a)}
}

// largestContour returns the index of the contour with the largest positive area, or -1.
func largestContour(contours []Contour) int {
	best := -1
	bestArea := 0.0
	for i, c := range contours {
		if area := contourArea(c); area > bestArea {
			best = i
			bestArea = area
		}
	}
	return best
}

func translateContour(c Contour, d image.Point) Contour {
	out := make(Contour, len(c))
	for i, p := range c {
		out[i] = p.Add(d)
	}
	return out
}

// minSquaredDistance returns the squared distance from p to the nearest point of c.
func minSquaredDistance(p Point2d, c Contour) float64 {
	best := math.Inf(1)
	for _, q := range c {
		dx := p.X - float64(q.X)
		dy := p.Y - float64(q.Y)
		if d := dx*dx + dy*dy; d < best {
			best = d
		}
	}
	return best
}
