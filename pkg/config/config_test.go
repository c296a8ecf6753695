package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"birdtracker/pkg/birdtracker"
	"birdtracker/pkg/config"
)

func TestDefaultMatchesRunConfigDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Input.Path = "/tmp/video.mp4"
	got := cfg.RunConfig()
	want := birdtracker.NewRunConfig()
	if got != want {
		t.Fatalf("RunConfig from defaults = %+v, want %+v", got, want)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "birdtracker.toml")
	content := `
[input]
path = "moon.mp4"
start_frame = 10
max_frames = 50

[output]
dir = "out"
sink = "SQLite"

[tier1]
block_size = 51
constant = 30

[tier4]
thinning = "GuoHall"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("Load resolved %q exists=%v, want %q", resolved, exists, path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if cfg.Output.Sink != "sqlite" {
		t.Fatalf("sink = %q, want sqlite", cfg.Output.Sink)
	}
	if !filepath.IsAbs(cfg.Input.Path) || !filepath.IsAbs(cfg.Output.Dir) {
		t.Fatalf("paths not absolute: %q %q", cfg.Input.Path, cfg.Output.Dir)
	}

	rc := cfg.RunConfig()
	if rc.Tier1.BlockSize != 51 || rc.Tier1.Constant != 30 {
		t.Fatalf("tier1 = %+v", rc.Tier1)
	}
	if rc.Tier2 != birdtracker.NewRunConfig().Tier2 {
		t.Fatalf("tier2 lost defaults: %+v", rc.Tier2)
	}
	if rc.Tier4.Thinning != birdtracker.ThinningGuoHall {
		t.Fatalf("thinning = %v, want guohall", rc.Tier4.Thinning)
	}

	bounds := cfg.SourceBounds()
	if bounds.Start != 10 || bounds.Max != 50 {
		t.Fatalf("bounds = %+v", bounds)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[tier9]\nblock_size = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"input.path":        func(c *config.Config) { c.Input.Path = "" },
		"output.sink":       func(c *config.Config) { c.Output.Sink = "kafka" },
		"tier1.block_size":  func(c *config.Config) { c.Tier1.BlockSize = 64 },
		"tier2.mask_width":  func(c *config.Config) { c.Tier2.MaskWidth = 0 },
		"tier3.kernel":      func(c *config.Config) { c.Tier3.Kernel = 33 },
		"tier3.blur_kernel": func(c *config.Config) { c.Tier3.BlurKernelX = 4 },
		"tier4.thinning":    func(c *config.Config) { c.Tier4.Thinning = "medial" },
		"stabilizer":        func(c *config.Config) { c.Stabilizer.SkyFloor = 300 },
		"logging.level":     func(c *config.Config) { c.Logging.Level = "trace" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Input.Path = "/tmp/video.mp4"
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestSampleConfigLoadsToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "birdtracker.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RunConfig() != birdtracker.NewRunConfig() {
		t.Fatalf("sample config does not match defaults: %+v", cfg.RunConfig())
	}
	if !strings.Contains(config.SampleConfig(), "[tier4]") {
		t.Fatal("sample config missing tier4 section")
	}
}

func TestDebugIntermediatesSetsPath(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.DebugIntermediates = true
	cfg.Output.DebugFrames = true
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	rc := cfg.RunConfig()
	if rc.SaveIntermediateFilesPath != cfg.IntermediatesDir() {
		t.Fatalf("intermediates path = %q", rc.SaveIntermediateFilesPath)
	}
	for _, dir := range []string{cfg.DataDir(), cfg.FramesDir(), cfg.IntermediatesDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", dir, err)
		}
	}
}
