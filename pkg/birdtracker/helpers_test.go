package birdtracker

import (
	"context"
	"io"
	"sync"
)

// syntheticFrame draws a disk of radius r at (cx, cy) and optional dark blobs.
func syntheticFrame(w, h, cx, cy, r int, level uint8, blobs ...blob) Frame {
	f := NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				f.Set(x, y, level)
			}
			for _, b := range blobs {
				bx, by := x-b.x, y-b.y
				if bx*bx+by*by <= b.r*b.r {
					f.Set(x, y, b.level)
				}
			}
		}
	}
	return f
}

type blob struct {
	x, y, r int
	level   uint8
}

// sliceSource replays frames and then reports end of stream.
type sliceSource struct {
	frames []Frame
	next   int
	closed bool
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// memorySink collects everything written to it.
type memorySink struct {
	mu         sync.Mutex
	detections map[Tier][]DetectionRecord
	disk       []DiskRecord
}

func newMemorySink() *memorySink {
	return &memorySink{detections: make(map[Tier][]DetectionRecord)}
}

func (m *memorySink) WriteDetections(tier Tier, recs []DetectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections[tier] = append(m.detections[tier], recs...)
	return nil
}

func (m *memorySink) WriteDisk(rec DiskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disk = append(m.disk, rec)
	return nil
}
