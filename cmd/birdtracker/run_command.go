package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"birdtracker/pkg/birdtracker"
	"birdtracker/pkg/config"
	"birdtracker/pkg/logging"
	"birdtracker/pkg/records"
)

type runFlags struct {
	input       string
	outputDir   string
	sink        string
	debugFrames bool
	startFrame  int
	maxFrames   int
	logLevel    string
	logFormat   string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [video]",
		Short: "Stabilize a lunar video and record bird candidates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := cmd.Flags().Set("input", args[0]); err != nil {
					return err
				}
			}
			if err := applyRunFlags(cmd, cfg, flags); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Video file or image sequence directory")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Output directory")
	cmd.Flags().StringVar(&flags.sink, "sink", "", "Record sink (csv or sqlite)")
	cmd.Flags().BoolVar(&flags.debugFrames, "debug-frames", false, "Write annotated frames to <output>/frames")
	cmd.Flags().IntVar(&flags.startFrame, "start-frame", 0, "Skip this many frames of the input")
	cmd.Flags().IntVar(&flags.maxFrames, "max-frames", 0, "Stop after this many frames (0 = all)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "Log format (auto, console, json)")
	return cmd
}

// applyRunFlags overrides the loaded configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) error {
	changed := cmd.Flags().Changed
	if changed("input") {
		cfg.Input.Path = flags.input
	}
	if changed("output-dir") {
		cfg.Output.Dir = flags.outputDir
	}
	if changed("sink") {
		cfg.Output.Sink = flags.sink
	}
	if changed("debug-frames") {
		cfg.Output.DebugFrames = flags.debugFrames
	}
	if changed("start-frame") {
		cfg.Input.StartFrame = flags.startFrame
	}
	if changed("max-frames") {
		cfg.Input.MaxFrames = flags.maxFrames
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = flags.logFormat
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// interruptedError reports a run stopped by a termination signal.
type interruptedError struct {
	sig unix.Signal
}

func (e *interruptedError) Error() string {
	return fmt.Sprintf("interrupted by %s", unix.SignalName(e.sig))
}

// ExitCode is the signal number.
func (e *interruptedError) ExitCode() int { return int(e.sig) }

// watchSignals cancels the returned context on SIGINT or SIGTERM and records
// which signal arrived.
func watchSignals(parent context.Context) (context.Context, func() (unix.Signal, bool), context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)

	var (
		mu       sync.Mutex
		received unix.Signal
		seen     bool
	)
	go func() {
		select {
		case s := <-ch:
			if sig, ok := s.(unix.Signal); ok {
				mu.Lock()
				received, seen = sig, true
				mu.Unlock()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	caught := func() (unix.Signal, bool) {
		mu.Lock()
		defer mu.Unlock()
		return received, seen
	}
	stop := func() {
		signal.Stop(ch)
		cancel()
	}
	return ctx, caught, stop
}

func runPipeline(parent context.Context, out io.Writer, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, caught, stop := watchSignals(parent)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := records.CheckWritableDir(cfg.Output.Dir); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	lock, err := records.AcquireLock(cfg.Output.Dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	paths := []string{"stderr"}
	if cfg.Logging.File != "" {
		paths = append(paths, cfg.Logging.File)
	}
	baseLogger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger := baseLogger.With(slog.String(logging.FieldRunID, runID))

	source, err := birdtracker.OpenSource(cfg.Input.Path, cfg.SourceBounds())
	if err != nil {
		logger.Error("open input", logging.Error(err))
		return err
	}
	defer source.Close()

	sink, err := records.Open(cfg.Output.Sink, cfg.Output.Dir)
	if err != nil {
		logger.Error("open sink", logging.Error(err))
		return err
	}

	rc := cfg.RunConfig()
	stab := birdtracker.NewStabilizer(rc.Stabilizer, logging.NewComponentLogger(logger, "stabilizer"))
	det := birdtracker.NewDetector(rc, logging.NewComponentLogger(logger, "detector"))
	acq := birdtracker.NewAcquirer(source, stab, sink, logging.NewComponentLogger(logger, "acquirer"))
	stages := []birdtracker.Stage{
		birdtracker.NewDetectorAB(det, sink, logging.NewComponentLogger(logger, "detector_ab")),
		birdtracker.NewDetectorCD(det, sink, logging.NewComponentLogger(logger, "detector_cd")),
	}

	opts := []birdtracker.Option{birdtracker.WithLogger(logging.NewComponentLogger(logger, "pipeline"))}
	if cfg.Output.DebugFrames {
		dumper, err := birdtracker.NewFrameDumper(cfg.FramesDir(), cfg.Output.DebugFrameWidth,
			logging.NewComponentLogger(logger, "frames"))
		if err != nil {
			_ = sink.Close()
			return err
		}
		opts = append(opts, birdtracker.WithObserver(dumper.Observe))
	}

	started := time.Now()
	logger.Info("run started",
		slog.String("input", cfg.Input.Path),
		slog.String("output", cfg.Output.Dir),
		slog.String("sink", cfg.Output.Sink))

	stats, runErr := birdtracker.NewCoordinator(acq, stages, opts...).Run(ctx)
	elapsed := time.Since(started)

	meta := records.Metadata{
		RunID:     runID,
		Input:     cfg.Input.Path,
		Version:   version,
		StartedAt: started,
		Frames:    stats.Frames,
		Rejected:  int(acq.RejectedFrames()),
		Extra: map[string]string{
			"sink":        cfg.Output.Sink,
			"start_frame": strconv.Itoa(cfg.Input.StartFrame),
			"max_frames":  strconv.Itoa(cfg.Input.MaxFrames),
			"elapsed":     elapsed.Round(time.Millisecond).String(),
		},
	}
	if err := sink.WriteMetadata(meta); err != nil {
		logger.Warn("metadata not written", logging.Error(err))
	}
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close sink: %w", err)
	}

	fmt.Fprintln(out, renderSummary(stats, acq, elapsed))

	if sig, ok := caught(); ok && errors.Is(runErr, context.Canceled) {
		logger.Warn("run interrupted", slog.String("signal", unix.SignalName(sig)), slog.Int("frames", stats.Frames))
		return &interruptedError{sig: sig}
	}
	if errors.Is(runErr, birdtracker.ErrNoTrackedObject) {
		logger.Error("tracked disk lost; re-run the remainder as a segment",
			slog.Int("next_start_frame", cfg.Input.StartFrame+int(acq.RawFrames())))
	}
	if runErr != nil {
		logger.Error("run failed", logging.Error(runErr), slog.Int("frames", stats.Frames))
		return runErr
	}
	logger.Info("run finished", slog.Int("frames", stats.Frames), slog.Duration("elapsed", elapsed))
	return nil
}
