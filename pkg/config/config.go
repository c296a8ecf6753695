// Package config loads birdtracker's TOML configuration and turns it into the
// immutable run configuration consumed by the pipeline.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"birdtracker/pkg/birdtracker"
)

//go:embed sample_config.toml
var sampleConfig string

// ProjectConfigName is looked up in the working directory when no path is given.
const ProjectConfigName = "birdtracker.toml"

// Input selects the video or image sequence and the segment to process.
type Input struct {
	Path       string `toml:"path"`
	StartFrame int    `toml:"start_frame"`
	MaxFrames  int    `toml:"max_frames"` // 0 = until end of stream
}

// Output controls where records and debug artifacts go.
type Output struct {
	Dir                string `toml:"dir"`
	Sink               string `toml:"sink"` // csv | sqlite
	DebugFrames        bool   `toml:"debug_frames"`
	DebugFrameWidth    int    `toml:"debug_frame_width"`
	DebugIntermediates bool   `toml:"debug_intermediates"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Stabilizer contains disk extraction settings.
type Stabilizer struct {
	SkyFloor int `toml:"sky_floor"`
}

// Halo contains quiet-halo elimination settings.
type Halo struct {
	Distance float64 `toml:"distance"`
}

// AdaptiveTier configures tiers 1 and 2.
type AdaptiveTier struct {
	MaxValue  float64 `toml:"max_value"`
	BlockSize int     `toml:"block_size"`
	Constant  float64 `toml:"constant"`
	MaskWidth int     `toml:"mask_width"`
}

// LaplacianTier configures tier 3.
type LaplacianTier struct {
	Kernel      int     `toml:"kernel"`
	Scale       float64 `toml:"scale"`
	Delta       float64 `toml:"delta"`
	BlurKernelX int     `toml:"blur_kernel_x"`
	BlurKernelY int     `toml:"blur_kernel_y"`
	BlurSigmaX  float64 `toml:"blur_sigma_x"`
	BlurSigmaY  float64 `toml:"blur_sigma_y"`
	Cutoff      float64 `toml:"cutoff"`
	MaskWidth   int     `toml:"mask_width"`
}

// GradientTier configures tier 4.
type GradientTier struct {
	MaxValue    float64 `toml:"max_value"`
	BlockSize   int     `toml:"block_size"`
	Constant    float64 `toml:"constant"`
	Power       float64 `toml:"power"`
	BlurKernelX int     `toml:"blur_kernel_x"`
	BlurKernelY int     `toml:"blur_kernel_y"`
	BlurSigmaX  float64 `toml:"blur_sigma_x"`
	BlurSigmaY  float64 `toml:"blur_sigma_y"`
	Thinning    string  `toml:"thinning"` // zhangsuen | guohall
	MaskWidth   int     `toml:"mask_width"`
}

// Config is the on-disk configuration.
type Config struct {
	Input      Input         `toml:"input"`
	Output     Output        `toml:"output"`
	Logging    Logging       `toml:"logging"`
	Stabilizer Stabilizer    `toml:"stabilizer"`
	Halo       Halo          `toml:"halo"`
	Tier1      AdaptiveTier  `toml:"tier1"`
	Tier2      AdaptiveTier  `toml:"tier2"`
	Tier3      LaplacianTier `toml:"tier3"`
	Tier4      GradientTier  `toml:"tier4"`
}

// Load locates, parses, and normalizes a configuration file. An empty path looks
// for ProjectConfigName in the working directory and falls back to defaults. The
// result is not validated; callers apply flag overrides first and then call
// Validate.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(ProjectConfigName)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(projectPath)
	switch {
	case err == nil && !info.IsDir():
		return projectPath, true, nil
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return projectPath, false, nil
	default:
		return "", false, fmt.Errorf("stat config: %w", err)
	}
}

// RunConfig converts the validated configuration into the pipeline's immutable form.
func (c *Config) RunConfig() birdtracker.RunConfig {
	rc := birdtracker.RunConfig{
		Stabilizer:   birdtracker.StabilizerParams{SkyFloor: uint8(c.Stabilizer.SkyFloor)},
		HaloDistance: c.Halo.Distance,
		Tier1:        c.Tier1.params(),
		Tier2:        c.Tier2.params(),
		Tier3: birdtracker.LaplacianParams{
			Kernel:     c.Tier3.Kernel,
			Scale:      c.Tier3.Scale,
			Delta:      c.Tier3.Delta,
			BlurKernel: image.Pt(c.Tier3.BlurKernelX, c.Tier3.BlurKernelY),
			BlurSigmaX: c.Tier3.BlurSigmaX,
			BlurSigmaY: c.Tier3.BlurSigmaY,
			Cutoff:     float32(c.Tier3.Cutoff),
			MaskWidth:  c.Tier3.MaskWidth,
		},
		Tier4: birdtracker.GradientParams{
			MaxValue:   float32(c.Tier4.MaxValue),
			BlockSize:  c.Tier4.BlockSize,
			Constant:   float32(c.Tier4.Constant),
			Power:      c.Tier4.Power,
			BlurKernel: image.Pt(c.Tier4.BlurKernelX, c.Tier4.BlurKernelY),
			BlurSigmaX: c.Tier4.BlurSigmaX,
			BlurSigmaY: c.Tier4.BlurSigmaY,
			Thinning:   thinningType(c.Tier4.Thinning),
			MaskWidth:  c.Tier4.MaskWidth,
		},
	}
	if c.Output.DebugIntermediates {
		rc.SaveIntermediateFilesPath = c.IntermediatesDir()
	}
	return rc
}

func (t AdaptiveTier) params() birdtracker.AdaptiveParams {
	return birdtracker.AdaptiveParams{
		MaxValue:  float32(t.MaxValue),
		BlockSize: t.BlockSize,
		Constant:  float32(t.Constant),
		MaskWidth: t.MaskWidth,
	}
}

func thinningType(name string) birdtracker.ThinningType {
	if name == birdtracker.ThinningGuoHall.String() {
		return birdtracker.ThinningGuoHall
	}
	return birdtracker.ThinningZhangSuen
}

// SourceBounds returns the input segment in the form sources expect.
func (c *Config) SourceBounds() birdtracker.SourceBounds {
	bounds := birdtracker.SourceBounds{Start: c.Input.StartFrame, Max: -1}
	if c.Input.MaxFrames > 0 {
		bounds.Max = c.Input.MaxFrames
	}
	return bounds
}

// DataDir holds the record streams.
func (c *Config) DataDir() string { return filepath.Join(c.Output.Dir, "data") }

// FramesDir holds annotated debug frames.
func (c *Config) FramesDir() string { return filepath.Join(c.Output.Dir, "frames") }

// IntermediatesDir holds per-stage tier images.
func (c *Config) IntermediatesDir() string { return filepath.Join(c.Output.Dir, "intermediates") }

// EnsureDirectories creates the output tree.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Output.Dir, c.DataDir()}
	if c.Output.DebugFrames {
		dirs = append(dirs, c.FramesDir())
	}
	if c.Output.DebugIntermediates {
		dirs = append(dirs, c.IntermediatesDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string { return sampleConfig }

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
