package birdtracker

import "image"

// EdgeTouch classifies which crop-window sides the tracked box coincides with.
type EdgeTouch int

const (
	EdgeNone EdgeTouch = iota
	EdgeLeft
	EdgeRight
	EdgeTop
	EdgeBottom
	EdgeTopLeft
	EdgeBottomLeft
	EdgeTopRight
	EdgeBottomRight
)

var edgeTouchLabels = map[EdgeTouch]string{
	EdgeNone:        "none",
	EdgeLeft:        "left",
	EdgeRight:       "right",
	EdgeTop:         "top",
	EdgeBottom:      "bottom",
	EdgeTopLeft:     "top-left",
	EdgeBottomLeft:  "bottom-left",
	EdgeTopRight:    "top-right",
	EdgeBottomRight: "bottom-right",
}

func (e EdgeTouch) String() string {
	if s, ok := edgeTouchLabels[e]; ok {
		return s
	}
	return "unknown"
}

// classifyEdgeTouch compares box against a window of size×size anchored at the origin.
// Only exact coordinate coincidence counts. Touching both sides of one axis leaves
// nothing to anchor on that axis, so that axis is treated as untouched.
func classifyEdgeTouch(box image.Rectangle, size int) EdgeTouch {
	left := box.Min.X == 0
	right := box.Max.X == size
	top := box.Min.Y == 0
	bottom := box.Max.Y == size

	// col: 0 left, 1 none, 2 right; row: 0 top, 1 none, 2 bottom
	col, row := 1, 1
	if left != right {
		if left {
			col = 0
		} else {
			col = 2
		}
	}
	if top != bottom {
		if top {
			row = 0
		} else {
			row = 2
		}
	}

	grid := [3][3]EdgeTouch{
		{EdgeTopLeft, EdgeTop, EdgeTopRight},
		{EdgeLeft, EdgeNone, EdgeRight},
		{EdgeBottomLeft, EdgeBottom, EdgeBottomRight},
	}
	return grid[row][col]
}

// cornerShift returns the translation that moves the visible corner(s) of box back
// onto the reference. A positive shift moves content toward the origin.
func cornerShift(touch EdgeTouch, box image.Rectangle, ref ReferenceGeometry) image.Point {
	fromTLx := box.Min.X - ref.TL.X
	fromTLy := box.Min.Y - ref.TL.Y
	fromBRx := box.Max.X - ref.BR.X
	fromBRy := box.Max.Y - ref.BR.Y

	switch touch {
	case EdgeNone:
		return image.Point{}
	case EdgeRight:
		return image.Pt(fromTLx, 0)
	case EdgeLeft:
		return image.Pt(fromBRx, 0)
	case EdgeBottom:
		return image.Pt(0, fromTLy)
	case EdgeTop:
		return image.Pt(0, fromBRy)
	case EdgeBottomRight:
		return image.Pt(fromTLx, fromTLy)
	case EdgeTopRight:
		return image.Pt(fromTLx, fromBRy)
	case EdgeBottomLeft:
		return image.Pt(fromBRx, fromTLy)
	case EdgeTopLeft:
		return image.Pt(fromBRx, fromBRy)
	default:
		return image.Point{}
	}
}

// edgePointCounts counts contour points lying on each side of a size×size window.
func edgePointCounts(c Contour, size int) (top, bottom, left, right int) {
	last := size - 1
	for _, p := range c {
		if p.Y == 0 {
			top++
		}
		if p.Y == last {
			bottom++
		}
		if p.X == 0 {
			left++
		}
		if p.X == last {
			right++
		}
	}
	return top, bottom, left, right
}
