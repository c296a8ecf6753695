package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateInput(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStabilizer(); err != nil {
		return err
	}
	if err := validateAdaptive("tier1", c.Tier1); err != nil {
		return err
	}
	if err := validateAdaptive("tier2", c.Tier2); err != nil {
		return err
	}
	if err := c.validateTier3(); err != nil {
		return err
	}
	return c.validateTier4()
}

func (c *Config) validateInput() error {
	if c.Input.Path == "" {
		return errors.New("input.path must be set (or pass --input)")
	}
	if c.Input.StartFrame < 0 {
		return errors.New("input.start_frame must be non-negative")
	}
	if c.Input.MaxFrames < 0 {
		return errors.New("input.max_frames must be non-negative")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Sink {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("output.sink must be csv or sqlite, got %q", c.Output.Sink)
	}
	if c.Output.DebugFrameWidth < 0 {
		return errors.New("output.debug_frame_width must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateStabilizer() error {
	if c.Stabilizer.SkyFloor < 0 || c.Stabilizer.SkyFloor > 254 {
		return errors.New("stabilizer.sky_floor must be between 0 and 254")
	}
	if c.Halo.Distance < 0 {
		return errors.New("halo.distance must be non-negative")
	}
	return nil
}

func validateAdaptive(section string, t AdaptiveTier) error {
	if err := validateBlockSize(section+".block_size", t.BlockSize); err != nil {
		return err
	}
	if t.MaxValue <= 0 || t.MaxValue > 255 {
		return fmt.Errorf("%s.max_value must be in (0, 255]", section)
	}
	if t.MaskWidth < 1 {
		return fmt.Errorf("%s.mask_width must be positive", section)
	}
	return nil
}

func (c *Config) validateTier3() error {
	t := c.Tier3
	switch t.Kernel {
	case 1, 3, 5, 7, 9, 11, 13, 15, 17, 19, 21, 23, 25, 27, 29, 31:
	default:
		return errors.New("tier3.kernel must be odd and at most 31")
	}
	if err := validateBlur("tier3", t.BlurKernelX, t.BlurKernelY); err != nil {
		return err
	}
	if t.Scale <= 0 {
		return errors.New("tier3.scale must be positive")
	}
	if t.MaskWidth < 1 {
		return errors.New("tier3.mask_width must be positive")
	}
	return nil
}

func (c *Config) validateTier4() error {
	t := c.Tier4
	if err := validateBlockSize("tier4.block_size", t.BlockSize); err != nil {
		return err
	}
	if err := validateBlur("tier4", t.BlurKernelX, t.BlurKernelY); err != nil {
		return err
	}
	if t.MaxValue <= 0 || t.MaxValue > 255 {
		return errors.New("tier4.max_value must be in (0, 255]")
	}
	if t.Power <= 0 {
		return errors.New("tier4.power must be positive")
	}
	switch t.Thinning {
	case "zhangsuen", "guohall":
	default:
		return fmt.Errorf("tier4.thinning must be zhangsuen or guohall, got %q", t.Thinning)
	}
	if t.MaskWidth < 1 {
		return errors.New("tier4.mask_width must be positive")
	}
	return nil
}

func validateBlockSize(key string, v int) error {
	if v < 3 || v%2 == 0 {
		return fmt.Errorf("%s must be an odd number >= 3", key)
	}
	return nil
}

func validateBlur(section string, kx, ky int) error {
	if kx < 1 || kx%2 == 0 || ky < 1 || ky%2 == 0 {
		return fmt.Errorf("%s.blur_kernel_x and %s.blur_kernel_y must be odd and positive", section, section)
	}
	return nil
}
