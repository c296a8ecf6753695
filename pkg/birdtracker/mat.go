package birdtracker

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// frameToMat copies f into a new CV_8UC1 Mat owned by the caller.
func frameToMat(f Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), fmt.Errorf("frame to mat: empty frame")
	}
	pix := f.Pix
	if f.Stride != f.Width {
		pix = f.Clone().Pix
	}
	view, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, pix[:f.Width*f.Height])
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("frame to mat: %w", err)
	}
	defer view.Close()
	// NewMatFromBytes aliases the Go slice; clone so the Mat owns its pixels.
	return view.Clone(), nil
}

// matToFrame copies an 8-bit single-channel Mat into an owned Frame.
func matToFrame(m gocv.Mat) (Frame, error) {
	if m.Empty() {
		return Frame{}, fmt.Errorf("mat to frame: empty mat")
	}
	if m.Type() != gocv.MatTypeCV8UC1 {
		return Frame{}, fmt.Errorf("mat to frame: unsupported mat type %v", m.Type())
	}
	src := m
	if !m.IsContinuous() {
		src = m.Clone()
		defer src.Close()
	}
	return Frame{Width: src.Cols(), Height: src.Rows(), Stride: src.Cols(), Pix: src.ToBytes()}, nil
}

// --- contour helpers ---

func findContours(binary gocv.Mat) []Contour {
	pv := gocv.FindContours(binary, gocv.RetrievalList, gocv.ChainApproxNone)
	defer pv.Close()
	points := pv.ToPoints()
	out := make([]Contour, len(points))
	for i, p := range points {
		out[i] = Contour(p)
	}
	return out
}

// drawContour strokes c onto img with a gray level. A negative thickness fills it.
func drawContour(img *gocv.Mat, c Contour, level uint8, thickness int) {
	if len(c) == 0 || thickness == 0 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{c})
	defer pv.Close()
	gocv.DrawContours(img, pv, 0, color.RGBA{R: level, G: level, B: level, A: 255}, thickness)
}

func contourArea(c Contour) float64 {
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

func contourPerimeter(c Contour) float64 {
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.ArcLength(pv, true)
}

func boundingRect(c Contour) image.Rectangle {
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.BoundingRect(pv)
}

func minEnclosingCircle(c Contour) (x, y, radius float32) {
	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()
	return gocv.MinEnclosingCircle(pv)
}

// --- CV operations ---

func thresholdToZero(src gocv.Mat, dst *gocv.Mat, floor uint8) {
	gocv.Threshold(src, dst, float32(floor), 255, gocv.ThresholdToZero)
}

func thresholdBinary(src gocv.Mat, dst *gocv.Mat, thresh, maxval float32) {
	gocv.Threshold(src, dst, thresh, maxval, gocv.ThresholdBinary)
}

func adaptiveThresholdInv(src gocv.Mat, dst *gocv.Mat, maxval float32, blockSize int, c float32) {
	gocv.AdaptiveThreshold(src, dst, maxval, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinaryInv, blockSize, c)
}

func laplacian32(src gocv.Mat, dst *gocv.Mat, ksize int, scale, delta float64) {
	gocv.Laplacian(src, dst, gocv.MatTypeCV32F, ksize, scale, delta, gocv.BorderDefault)
}

func gaussianBlur(src gocv.Mat, dst *gocv.Mat, ksize image.Point, sigmaX, sigmaY float64) {
	gocv.GaussianBlur(src, dst, ksize, sigmaX, sigmaY, gocv.BorderDefault)
}

func sobel32(src gocv.Mat, dst *gocv.Mat, dx, dy int) {
	gocv.Sobel(src, dst, gocv.MatTypeCV32F, dx, dy, 3, 1, 0, gocv.BorderDefault)
}

func thinning(src gocv.Mat, dst *gocv.Mat, t ThinningType) {
	switch t {
	case ThinningZhangSuen:
		contrib.Thinning(src, dst, contrib.ThinningZhangSuen)
	case ThinningGuoHall:
		contrib.Thinning(src, dst, contrib.ThinningGuoHall)
	}
}

func imWriteMat(path string, m gocv.Mat) {
	gocv.IMWrite(path, m)
}
