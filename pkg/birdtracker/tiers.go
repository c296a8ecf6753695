package birdtracker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// trackedIndex is the slot the tracked disk occupies in every tier's candidate list.
const trackedIndex = 0

// Detector runs the contour detection tiers on stabilized frames. It holds no
// per-frame state and is safe for concurrent use.
type Detector struct {
	cfg    RunConfig
	logger *slog.Logger
}

// NewDetector creates a detector bound to cfg.
func NewDetector(cfg RunConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Detector{cfg: cfg, logger: logger}
}

// Detect runs one tier against the current frame. Tiers 3 and 4 need prev and
// produce nothing without it.
func (d *Detector) Detect(tier Tier, index int, cur, prev *Stabilized) ([]DetectionRecord, error) {
	if cur == nil || cur.Frame.Empty() {
		return nil, fmt.Errorf("%s frame %d: no current frame", tier, index)
	}
	if (tier == Tier3 || tier == Tier4) && (prev == nil || prev.Frame.Empty()) {
		return nil, nil
	}

	curMat, err := frameToMat(cur.Frame)
	if err != nil {
		return nil, fmt.Errorf("%s frame %d: %w", tier, index, err)
	}
	defer curMat.Close()

	var prevMat gocv.Mat
	if tier == Tier3 || tier == Tier4 {
		prevMat, err = frameToMat(prev.Frame)
		if err != nil {
			return nil, fmt.Errorf("%s frame %d: %w", tier, index, err)
		}
		defer prevMat.Close()
	}

	binary := gocv.NewMat()
	defer binary.Close()

	var maskWidth int
	switch tier {
	case Tier1:
		d.adaptive(curMat, &binary, d.cfg.Tier1, index, "t1")
		maskWidth = d.cfg.Tier1.MaskWidth
	case Tier2:
		d.adaptive(curMat, &binary, d.cfg.Tier2, index, "t2")
		maskWidth = d.cfg.Tier2.MaskWidth
	case Tier3:
		d.laplacianDifference(curMat, prevMat, &binary, index)
		maskWidth = d.cfg.Tier3.MaskWidth
	case Tier4:
		d.gradientDifference(curMat, prevMat, &binary, index)
		maskWidth = d.cfg.Tier4.MaskWidth
	default:
		return nil, fmt.Errorf("unknown tier %d", int(tier))
	}

	return d.collect(tier, index, binary, cur, maskWidth), nil
}

// adaptive is the body of tiers 1 and 2: a Gaussian adaptive threshold that marks
// pixels darker than their neighbourhood.
func (d *Detector) adaptive(src gocv.Mat, dst *gocv.Mat, p AdaptiveParams, index int, tag string) {
	adaptiveThresholdInv(src, dst, p.MaxValue, p.BlockSize, p.Constant)
	d.maybeSave(*dst, index, tag+"-01-threshold.png")
}

// laplacianDifference is tier 3: blurred Laplacian of current minus that of previous, cut off.
func (d *Detector) laplacianDifference(cur, prev gocv.Mat, dst *gocv.Mat, index int) {
	p := d.cfg.Tier3

	// Step 1: second derivative of both frames
	lapCur := gocv.NewMat()
	defer lapCur.Close()
	lapPrev := gocv.NewMat()
	defer lapPrev.Close()
	laplacian32(cur, &lapCur, p.Kernel, p.Scale, p.Delta)
	laplacian32(prev, &lapPrev, p.Kernel, p.Scale, p.Delta)

	// Step 2: smooth
	blurCur := gocv.NewMat()
	defer blurCur.Close()
	blurPrev := gocv.NewMat()
	defer blurPrev.Close()
	gaussianBlur(lapCur, &blurCur, p.BlurKernel, p.BlurSigmaX, p.BlurSigmaY)
	gaussianBlur(lapPrev, &blurPrev, p.BlurKernel, p.BlurSigmaX, p.BlurSigmaY)

	// Step 3: difference and cutoff
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(blurCur, blurPrev, &diff)
	cut := gocv.NewMat()
	defer cut.Close()
	thresholdBinary(diff, &cut, p.Cutoff, 255)
	cut.ConvertTo(dst, gocv.MatTypeCV8U)
	d.maybeSave(*dst, index, "t3-01-cutoff.png")
}

// gradientDifference is tier 4: gradient magnitude of the thresholded frame
// difference, thinned to a skeleton.
func (d *Detector) gradientDifference(cur, prev gocv.Mat, dst *gocv.Mat, index int) {
	p := d.cfg.Tier4

	// Step 1: saturating difference, then adaptive threshold
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(cur, prev, &diff)
	bin := gocv.NewMat()
	defer bin.Close()
	adaptiveThresholdInv(diff, &bin, p.MaxValue, p.BlockSize, p.Constant)
	d.maybeSave(bin, index, "t4-01-threshold.png")

	// Step 2: gradient magnitude
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	sobel32(bin, &gx, 1, 0)
	sobel32(bin, &gy, 0, 1)
	px := gocv.NewMat()
	defer px.Close()
	py := gocv.NewMat()
	defer py.Close()
	gocv.Pow(gx, p.Power, &px)
	gocv.Pow(gy, p.Power, &py)
	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(px, py, &sum)
	mag := gocv.NewMat()
	defer mag.Close()
	gocv.Sqrt(sum, &mag)
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.ConvertScaleAbs(mag, &edges, 1, 0)

	// Step 3: smooth and skeletonize
	blurred := gocv.NewMat()
	defer blurred.Close()
	gaussianBlur(edges, &blurred, p.BlurKernel, p.BlurSigmaX, p.BlurSigmaY)
	d.maybeSave(blurred, index, "t4-02-gradient.png")
	thinning(blurred, dst, p.Thinning)
	d.maybeSave(*dst, index, "t4-03-thinned.png")
}

// collect applies the dynamic mask and quiet-halo elimination to a tier's binary
// image and converts what is left into records.
func (d *Detector) collect(tier Tier, index int, binary gocv.Mat, cur *Stabilized, maskWidth int) []DetectionRecord {
	drawContour(&binary, cur.Tracked, 0, maskWidth)

	contours := findContours(binary)
	survivors := eliminateQuietHalo(contours, cur.Tracked, d.cfg.HaloDistance)

	candidates := make([]Contour, 0, len(survivors)+1)
	candidates = append(candidates, cur.Tracked)
	candidates = append(candidates, survivors...)
	if len(candidates) < 2 {
		d.logger.Debug("tier found nothing besides the disk",
			slog.String("tier", tier.String()),
			slog.Int("frame", index),
			slog.Int("contours", len(contours)))
		return nil
	}

	records := make([]DetectionRecord, 0, len(candidates)-1)
	for i, c := range candidates {
		if i == trackedIndex {
			continue
		}
		x, y, r := minEnclosingCircle(c)
		if r == cur.DiskRadius {
			continue
		}
		records = append(records, DetectionRecord{Frame: index, X: x, Y: y, Radius: r})
	}
	return records
}

func (d *Detector) maybeSave(img gocv.Mat, index int, name string) {
	maybeSaveImage(img, d.cfg.SaveIntermediateFilesPath, fmt.Sprintf("%06d-%s", index, name))
}

func maybeSaveImage(img gocv.Mat, savePath, filename string) {
	if savePath == "" {
		return
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return
	}
	imWriteMat(filepath.Join(savePath, filename), img)
}
