package birdtracker

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"
)

// Stabilizer keeps the tracked disk at a fixed position inside a BOXSIZE×BOXSIZE window.
// It is owned by the acquirer and is not safe for concurrent use.
type Stabilizer struct {
	params  StabilizerParams
	logger  *slog.Logger
	boxSize int
	ref     *ReferenceGeometry
}

// NewStabilizer creates a stabilizer. BOXSIZE is fixed by the frame that supplies
// the reference geometry.
func NewStabilizer(params StabilizerParams, logger *slog.Logger) *Stabilizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stabilizer{params: params, logger: logger}
}

// BoxSize returns the crop window size, or 0 before the first frame. It may
// change until a reference is captured.
func (s *Stabilizer) BoxSize() int { return s.boxSize }

// Reference returns the captured reference geometry, if any.
func (s *Stabilizer) Reference() (ReferenceGeometry, bool) {
	if s.ref == nil {
		return ReferenceGeometry{}, false
	}
	return *s.ref, true
}

type roughCrop struct {
	mat     gocv.Mat
	contour Contour         // crop coordinates
	box     image.Rectangle // crop coordinates
	rawBox  image.Rectangle
	area    float64
}

// Stabilize crops and aligns one raw frame.
func (s *Stabilizer) Stabilize(raw Frame, index int) (Stabilized, DiskRecord, error) {
	if raw.Empty() {
		return Stabilized{}, DiskRecord{}, fmt.Errorf("frame %d: %w", index, ErrNoTrackedObject)
	}
	if s.ref == nil {
		s.boxSize = min(raw.Width, raw.Height)
	}

	src, err := frameToMat(raw)
	if err != nil {
		return Stabilized{}, DiskRecord{}, err
	}
	defer src.Close()

	// Step 1: rough crop around the largest contour
	crop, err := s.roughCrop(src)
	if err != nil {
		return Stabilized{}, DiskRecord{}, fmt.Errorf("frame %d: %w", index, err)
	}
	defer crop.mat.Close()

	// Step 2: classify edge contact against the crop window
	touch := classifyEdgeTouch(crop.box, s.boxSize)
	rec := s.diskRecord(index, crop)

	// Step 3: capture the reference from the first clean frame
	if s.ref == nil {
		if touch != EdgeNone {
			return Stabilized{}, rec, fmt.Errorf("touch %s: %w", touch, ErrReferenceRejected)
		}
		s.ref = &ReferenceGeometry{
			TL:        crop.box.Min,
			BR:        crop.box.Max,
			Area:      crop.area,
			Perimeter: contourPerimeter(crop.contour),
			Vert:      crop.box.Dy(),
			Horz:      crop.box.Dx(),
		}
		s.logger.Info("reference geometry captured",
			slog.Int("frame", index),
			slog.Int("box_size", s.boxSize),
			slog.Any("tl", s.ref.TL),
			slog.Any("br", s.ref.BR),
			slog.Float64("area", s.ref.Area))
		return s.finish(crop.mat, touch, rec)
	}

	// Step 4: align
	var aligned gocv.Mat
	switch touch {
	case EdgeNone:
		aligned = centerTraditional(crop.mat, crop.contour, crop.box, s.boxSize)
	case EdgeLeft, EdgeRight, EdgeTop, EdgeBottom,
		EdgeTopLeft, EdgeBottomLeft, EdgeTopRight, EdgeBottomRight:
		shift := cornerShift(touch, crop.box, *s.ref)
		s.logger.Debug("corner matched",
			slog.Int("frame", index),
			slog.String("touch", touch.String()),
			slog.Int("shift_x", shift.X),
			slog.Int("shift_y", shift.Y))
		aligned = shiftFrame(crop.mat, shift, s.boxSize)
	default:
		return Stabilized{}, rec, fmt.Errorf("frame %d: unknown edge touch %d", index, int(touch))
	}
	defer aligned.Close()
	return s.finish(aligned, touch, rec)
}

// finish copies the aligned window out and re-extracts the tracked contour in
// stabilized coordinates.
func (s *Stabilizer) finish(m gocv.Mat, touch EdgeTouch, rec DiskRecord) (Stabilized, DiskRecord, error) {
	frame, err := matToFrame(m)
	if err != nil {
		return Stabilized{}, rec, fmt.Errorf("frame %d: %w", rec.Frame, err)
	}
	out := Stabilized{Frame: frame, Touch: touch}
	if tracked := s.trackedContour(m); tracked != nil {
		out.Tracked = tracked
		_, _, out.DiskRadius = minEnclosingCircle(tracked)
	} else {
		s.logger.Warn("tracked disk lost after alignment", slog.Int("frame", rec.Frame), slog.String("touch", touch.String()))
	}
	return out, rec, nil
}

func (s *Stabilizer) roughCrop(src gocv.Mat) (roughCrop, error) {
	floored := gocv.NewMat()
	defer floored.Close()
	thresholdToZero(src, &floored, s.params.SkyFloor)

	contour := s.trackedContour(floored)
	if contour == nil {
		return roughCrop{}, ErrNoTrackedObject
	}
	rawBox := boundingRect(contour)
	window := cropWindow(rawBox, s.boxSize, src.Cols(), src.Rows())

	out := gocv.Zeros(s.boxSize, s.boxSize, gocv.MatTypeCV8UC1)
	visible := window.Intersect(image.Rect(0, 0, src.Cols(), src.Rows()))
	if !visible.Empty() {
		copyRegion(floored, visible, &out, visible.Sub(window.Min))
	}

	return roughCrop{
		mat:     out,
		contour: translateContour(contour, image.Point{}.Sub(window.Min)),
		box:     rawBox.Sub(window.Min),
		rawBox:  rawBox,
		area:    contourArea(contour),
	}, nil
}

// trackedContour returns the largest contour brighter than the sky floor, or nil.
func (s *Stabilizer) trackedContour(m gocv.Mat) Contour {
	binary := gocv.NewMat()
	defer binary.Close()
	thresholdBinary(m, &binary, float32(s.params.SkyFloor), 255)
	contours := findContours(binary)
	idx := largestContour(contours)
	if idx < 0 {
		return nil
	}
	return contours[idx]
}

func (s *Stabilizer) diskRecord(index int, crop roughCrop) DiskRecord {
	top, bottom, left, right := edgePointCounts(crop.contour, s.boxSize)
	return DiskRecord{
		Frame:      index,
		CenterX:    float32(crop.rawBox.Min.X) + float32(crop.rawBox.Dx())/2,
		CenterY:    float32(crop.rawBox.Min.Y) + float32(crop.rawBox.Dy())/2,
		Width:      crop.rawBox.Dx(),
		Height:     crop.rawBox.Dy(),
		Area:       crop.area,
		EdgeTop:    top,
		EdgeBottom: bottom,
		EdgeLeft:   left,
		EdgeRight:  right,
	}
}

// cropWindow centers a size×size window on box, kept inside a w×h frame on every
// axis where the frame is large enough.
func cropWindow(box image.Rectangle, size, w, h int) image.Rectangle {
	x0 := box.Min.X + box.Dx()/2 - size/2
	y0 := box.Min.Y + box.Dy()/2 - size/2
	if w >= size {
		x0 = clampInt(x0, 0, w-size)
	}
	if h >= size {
		y0 = clampInt(y0, 0, h-size)
	}
	return image.Rect(x0, y0, x0+size, y0+size)
}

// centerTraditional pastes the masked box region at (size/2 - w/2, size/2 - h/2).
func centerTraditional(crop gocv.Mat, c Contour, box image.Rectangle, size int) gocv.Mat {
	mask := gocv.Zeros(size, size, gocv.MatTypeCV8UC1)
	defer mask.Close()
	drawContour(&mask, c, 255, -1)

	masked := gocv.Zeros(size, size, gocv.MatTypeCV8UC1)
	defer masked.Close()
	crop.CopyToWithMask(&masked, mask)

	out := gocv.Zeros(size, size, gocv.MatTypeCV8UC1)
	origin := image.Pt(size/2-box.Dx()/2, size/2-box.Dy()/2)
	dst := image.Rectangle{Min: origin, Max: origin.Add(box.Size())}
	srcRect, dstRect := clipCopy(box, dst, image.Rect(0, 0, size, size))
	if !srcRect.Empty() {
		copyRegion(masked, srcRect, &out, dstRect)
	}
	return out
}

// shiftFrame moves content by -shift with zero fill. Content at (x+sx, y+sy) lands on (x, y).
func shiftFrame(frame gocv.Mat, shift image.Point, size int) gocv.Mat {
	out := gocv.Zeros(size, size, gocv.MatTypeCV8UC1)
	ax, ay := intAbs(shift.X), intAbs(shift.Y)
	if ax >= size || ay >= size {
		return out
	}
	block := image.Pt(size-ax, size-ay)

	var src, dst image.Point
	switch {
	case shift.X < 0 && shift.Y < 0:
		src, dst = image.Pt(0, 0), image.Pt(ax, ay)
	case shift.X < 0:
		src, dst = image.Pt(0, ay), image.Pt(ax, 0)
	case shift.Y < 0:
		src, dst = image.Pt(ax, 0), image.Pt(0, ay)
	default:
		src, dst = image.Pt(ax, ay), image.Pt(0, 0)
	}
	copyRegion(frame, image.Rectangle{Min: src, Max: src.Add(block)}, &out, image.Rectangle{Min: dst, Max: dst.Add(block)})
	return out
}

// clipCopy trims an equally sized src/dst pair so both lie inside bounds.
func clipCopy(src, dst, bounds image.Rectangle) (image.Rectangle, image.Rectangle) {
	d := dst.Min.Sub(src.Min)
	s := src.Intersect(bounds).Intersect(bounds.Sub(d))
	if s.Empty() {
		return image.Rectangle{}, image.Rectangle{}
	}
	return s, s.Add(d)
}

func copyRegion(src gocv.Mat, srcRect image.Rectangle, dst *gocv.Mat, dstRect image.Rectangle) {
	from := src.Region(srcRect)
	defer from.Close()
	to := dst.Region(dstRect)
	defer to.Close()
	from.CopyTo(&to)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
