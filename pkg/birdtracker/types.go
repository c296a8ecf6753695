// Package birdtracker extracts candidate bird transits from lunar video: it
// stabilizes the tracked disk frame by frame and runs four contour detection
// tiers over the stabilized frames in a lock-step worker pipeline.
package birdtracker

import (
	"fmt"
	"image"
)

// Frame is an owned single-channel 8-bit image buffer.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []uint8
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Stride: width, Pix: make([]uint8, width*height)}
}

func (f Frame) Empty() bool { return f.Width == 0 || f.Height == 0 || len(f.Pix) == 0 }

func (f Frame) At(x, y int) uint8 { return f.Pix[y*f.Stride+x] }

func (f Frame) Set(x, y int, v uint8) { f.Pix[y*f.Stride+x] = v }

// Clone returns a compact deep copy.
func (f Frame) Clone() Frame {
	out := NewFrame(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], f.Pix[y*f.Stride:y*f.Stride+f.Width])
	}
	return out
}

// Contour is an ordered list of boundary points.
type Contour []image.Point

// ReferenceGeometry is captured from the first accepted frame and never changes.
type ReferenceGeometry struct {
	TL        image.Point
	BR        image.Point
	Area      float64
	Perimeter float64
	Vert      int
	Horz      int
}

// Tier identifies one of the four detection strategies.
type Tier int

const (
	Tier1 Tier = iota + 1
	Tier2
	Tier3
	Tier4
)

// AllTiers lists the tiers in emission order.
var AllTiers = []Tier{Tier1, Tier2, Tier3, Tier4}

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "Tier1"
	case Tier2:
		return "Tier2"
	case Tier3:
		return "Tier3"
	case Tier4:
		return "Tier4"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// DetectionRecord is one candidate bird in stabilized coordinates.
type DetectionRecord struct {
	Frame  int
	X      float32
	Y      float32
	Radius float32
}

// DiskRecord summarizes the tracked disk for one frame.
type DiskRecord struct {
	Frame      int
	CenterX    float32
	CenterY    float32
	Width      int
	Height     int
	Area       float64
	EdgeTop    int
	EdgeBottom int
	EdgeLeft   int
	EdgeRight  int
}

// Stabilized is the output of one stabilization step.
type Stabilized struct {
	Frame      Frame
	Tracked    Contour
	DiskRadius float32
	Touch      EdgeTouch
}

// ThinningType selects the skeletonization algorithm used by tier 4.
type ThinningType int

const (
	ThinningZhangSuen ThinningType = iota
	ThinningGuoHall
)

func (t ThinningType) String() string {
	switch t {
	case ThinningZhangSuen:
		return "zhangsuen"
	case ThinningGuoHall:
		return "guohall"
	default:
		return "unknown"
	}
}

// StabilizerParams configures the stabilizer.
type StabilizerParams struct {
	// Pixels at or below SkyFloor are treated as empty sky.
	SkyFloor uint8
}

// AdaptiveParams configures an adaptive-threshold tier.
type AdaptiveParams struct {
	MaxValue  float32
	BlockSize int
	Constant  float32
	MaskWidth int
}

// LaplacianParams configures tier 3.
type LaplacianParams struct {
	Kernel     int
	Scale      float64
	Delta      float64
	BlurKernel image.Point
	BlurSigmaX float64
	BlurSigmaY float64
	Cutoff     float32
	MaskWidth  int
}

// GradientParams configures tier 4.
type GradientParams struct {
	MaxValue   float32
	BlockSize  int
	Constant   float32
	Power      float64
	BlurKernel image.Point
	BlurSigmaX float64
	BlurSigmaY float64
	Thinning   ThinningType
	MaskWidth  int
}

// RunConfig is the immutable configuration shared by every pipeline component.
type RunConfig struct {
	Stabilizer   StabilizerParams
	HaloDistance float64
	Tier1        AdaptiveParams
	Tier2        AdaptiveParams
	Tier3        LaplacianParams
	Tier4        GradientParams

	// SaveIntermediateFilesPath enables per-stage image dumps when set to an existing directory.
	SaveIntermediateFilesPath string
}

// NewRunConfig returns the default tuning.
func NewRunConfig() RunConfig {
	return RunConfig{
		Stabilizer:   StabilizerParams{SkyFloor: 10},
		HaloDistance: 10,
		Tier1: AdaptiveParams{
			MaxValue:  255,
			BlockSize: 65,
			Constant:  35,
			MaskWidth: 25,
		},
		Tier2: AdaptiveParams{
			MaxValue:  255,
			BlockSize: 65,
			Constant:  20,
			MaskWidth: 35,
		},
		Tier3: LaplacianParams{
			Kernel:     11,
			Scale:      0.0001,
			Delta:      0,
			BlurKernel: image.Pt(11, 11),
			BlurSigmaX: 1,
			BlurSigmaY: 1,
			Cutoff:     40,
			MaskWidth:  45,
		},
		Tier4: GradientParams{
			MaxValue:   255,
			BlockSize:  35,
			Constant:   5,
			Power:      2,
			BlurKernel: image.Pt(11, 11),
			BlurSigmaX: 1,
			BlurSigmaY: 1,
			Thinning:   ThinningZhangSuen,
			MaskWidth:  45,
		},
	}
}
