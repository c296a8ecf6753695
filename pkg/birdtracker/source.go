package birdtracker

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// SourceBounds restricts a source to a segment of its frames. A negative Max
// means no limit.
type SourceBounds struct {
	Start int
	Max   int
}

// OpenSource opens a directory as an image sequence and anything else as a video.
func OpenSource(path string, bounds SourceBounds) (FrameSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if info.IsDir() {
		return OpenImageSequence(path, bounds)
	}
	return OpenVideo(path, bounds)
}

// VideoSource decodes a video file through OpenCV and yields grayscale frames.
type VideoSource struct {
	path      string
	vc        *gocv.VideoCapture
	buf       gocv.Mat
	gray      gocv.Mat
	remaining int
}

// OpenVideo opens path and seeks to bounds.Start.
func OpenVideo(path string, bounds SourceBounds) (*VideoSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %s: decoder did not open", path)
	}
	if bounds.Start > 0 {
		vc.Set(gocv.VideoCapturePosFrames, float64(bounds.Start))
	}
	return &VideoSource{
		path:      path,
		vc:        vc,
		buf:       gocv.NewMat(),
		gray:      gocv.NewMat(),
		remaining: bounds.Max,
	}, nil
}

// FrameCount reports the container's frame count; it may be an estimate.
func (v *VideoSource) FrameCount() int {
	return int(v.vc.Get(gocv.VideoCaptureFrameCount))
}

// Next implements FrameSource. An empty decode ends the stream.
func (v *VideoSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if v.remaining == 0 {
		return Frame{}, io.EOF
	}
	if ok := v.vc.Read(&v.buf); !ok || v.buf.Empty() {
		return Frame{}, io.EOF
	}
	switch v.buf.Channels() {
	case 1:
		v.buf.CopyTo(&v.gray)
	case 3:
		gocv.CvtColor(v.buf, &v.gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(v.buf, &v.gray, gocv.ColorBGRAToGray)
	default:
		return Frame{}, fmt.Errorf("%s: unsupported channel count %d", v.path, v.buf.Channels())
	}
	if v.remaining > 0 {
		v.remaining--
	}
	return matToFrame(v.gray)
}

func (v *VideoSource) Close() error {
	v.buf.Close()
	v.gray.Close()
	return v.vc.Close()
}

var sequenceExtensions = map[string]bool{
	".fits": true,
	".fit":  true,
	".fts":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// SequenceSource yields the images of a directory in lexical order.
type SequenceSource struct {
	files []string
	next  int
}

// OpenImageSequence lists the supported images in dir.
func OpenImageSequence(dir string, bounds SourceBounds) (*SequenceSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sequence directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !sequenceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	start := min(max(bounds.Start, 0), len(files))
	files = files[start:]
	if bounds.Max >= 0 && bounds.Max < len(files) {
		files = files[:bounds.Max]
	}
	return &SequenceSource{files: files}, nil
}

// Len returns the number of frames the sequence will yield.
func (s *SequenceSource) Len() int { return len(s.files) }

// Next implements FrameSource.
func (s *SequenceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.files) {
		return Frame{}, io.EOF
	}
	path := s.files[s.next]
	s.next++

	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return ReadFitsFrame(path)
	default:
		img, err := imaging.Open(path)
		if err != nil {
			return Frame{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return grayFrame(img), nil
	}
}

func (s *SequenceSource) Close() error { return nil }

// grayFrame converts any image to an 8-bit luminance frame.
func grayFrame(img image.Image) Frame {
	g := imaging.Grayscale(img)
	b := g.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < b.Dx(); x++ {
			f.Pix[y*f.Stride+x] = row[x*4]
		}
	}
	return f
}
