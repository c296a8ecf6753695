package birdtracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// FrameSource yields raw grayscale frames in order. Next returns io.EOF at the end
// of the stream.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// RecordSink receives detections and disk statistics. Each tier stream is written
// by a single worker; implementations must allow different tiers concurrently.
type RecordSink interface {
	WriteDetections(tier Tier, records []DetectionRecord) error
	WriteDisk(rec DiskRecord) error
}

// Acquirer pulls raw frames, stabilizes them and fills the current slot.
type Acquirer struct {
	source FrameSource
	stab   *Stabilizer
	sink   RecordSink
	logger *slog.Logger

	raw      atomic.Int64
	rejected atomic.Int64
}

// NewAcquirer creates the producer side of the pipeline. sink may be nil.
func NewAcquirer(source FrameSource, stab *Stabilizer, sink RecordSink, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Acquirer{source: source, stab: stab, sink: sink, logger: logger}
}

// RawFrames returns the number of raw frames read so far.
func (a *Acquirer) RawFrames() int64 { return a.raw.Load() }

// RejectedFrames returns how many reference candidates were skipped.
func (a *Acquirer) RejectedFrames() int64 { return a.rejected.Load() }

// Produce implements Producer. Frames rejected as reference candidates are
// skipped without consuming a frame index.
func (a *Acquirer) Produce(ctx context.Context, index int, dst *Slot) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := a.source.Next(ctx)
		if err != nil {
			return err
		}
		if raw.Empty() {
			return io.EOF
		}
		n := a.raw.Add(1)

		st, rec, err := a.stab.Stabilize(raw, index)
		if errors.Is(err, ErrReferenceRejected) {
			a.rejected.Add(1)
			a.logger.Info("reference candidate rejected",
				slog.Int64("raw_frame", n-1),
				slog.String("reason", err.Error()))
			continue
		}
		if err != nil {
			return err
		}
		if a.sink != nil {
			if err := a.sink.WriteDisk(rec); err != nil {
				return fmt.Errorf("write disk record: %w", err)
			}
		}

		dst.Index = index
		dst.Stabilized = st
		dst.Valid = true
		return nil
	}
}

// TierStage runs a fixed list of tiers for every published cycle.
type TierStage struct {
	name   string
	tiers  []Tier
	det    *Detector
	sink   RecordSink
	logger *slog.Logger
}

// NewTierStage creates a stage. sink may be nil.
func NewTierStage(name string, tiers []Tier, det *Detector, sink RecordSink, logger *slog.Logger) *TierStage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TierStage{name: name, tiers: tiers, det: det, sink: sink, logger: logger}
}

// NewDetectorAB runs tiers 1 and 2, which only need the current frame.
func NewDetectorAB(det *Detector, sink RecordSink, logger *slog.Logger) *TierStage {
	return NewTierStage("detector_ab", []Tier{Tier1, Tier2}, det, sink, logger)
}

// NewDetectorCD runs tiers 3 and 4, which compare against the previous frame.
func NewDetectorCD(det *Detector, sink RecordSink, logger *slog.Logger) *TierStage {
	return NewTierStage("detector_cd", []Tier{Tier3, Tier4}, det, sink, logger)
}

func (s *TierStage) Name() string { return s.name }

// Process implements Stage.
func (s *TierStage) Process(ctx context.Context, c Cycle) (StageResult, error) {
	res := StageResult{Records: make(map[Tier][]DetectionRecord, len(s.tiers))}
	var prev *Stabilized
	if c.Previous != nil {
		prev = &c.Previous.Stabilized
	}

	for _, tier := range s.tiers {
		if needsPrevious(tier) && prev == nil {
			s.logger.Debug("tier skipped without previous frame",
				slog.String("tier", tier.String()),
				slog.Int("frame", c.Index))
			continue
		}
		recs, err := s.det.Detect(tier, c.Index, &c.Current.Stabilized, prev)
		if err != nil {
			return res, err
		}
		if s.sink != nil && len(recs) > 0 {
			if err := s.sink.WriteDetections(tier, recs); err != nil {
				return res, fmt.Errorf("write %s records: %w", tier, err)
			}
		}
		res.Records[tier] = recs
	}
	return res, nil
}

func needsPrevious(t Tier) bool {
	switch t {
	case Tier3, Tier4:
		return true
	case Tier1, Tier2:
		return false
	default:
		return false
	}
}
