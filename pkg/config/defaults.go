package config

const (
	defaultOutputDir       = "Birdtracker_Output"
	defaultSink            = "csv"
	defaultDebugFrameWidth = 0
	defaultLogFormat       = "auto"
	defaultLogLevel        = "info"
	defaultSkyFloor        = 10
	defaultHaloDistance    = 10

	defaultAdaptiveMax       = 255
	defaultAdaptiveBlockSize = 65
	defaultTier1Constant     = 35
	defaultTier1MaskWidth    = 25
	defaultTier2Constant     = 20
	defaultTier2MaskWidth    = 35

	defaultLaplacianKernel = 11
	defaultLaplacianScale  = 0.0001
	defaultBlurKernel      = 11
	defaultBlurSigma       = 1
	defaultTier3Cutoff     = 40
	defaultTier3MaskWidth  = 45

	defaultTier4BlockSize = 35
	defaultTier4Constant  = 5
	defaultTier4Power     = 2
	defaultTier4Thinning  = "zhangsuen"
	defaultTier4MaskWidth = 45
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Output: Output{
			Dir:             defaultOutputDir,
			Sink:            defaultSink,
			DebugFrameWidth: defaultDebugFrameWidth,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Stabilizer: Stabilizer{SkyFloor: defaultSkyFloor},
		Halo:       Halo{Distance: defaultHaloDistance},
		Tier1: AdaptiveTier{
			MaxValue:  defaultAdaptiveMax,
			BlockSize: defaultAdaptiveBlockSize,
			Constant:  defaultTier1Constant,
			MaskWidth: defaultTier1MaskWidth,
		},
		Tier2: AdaptiveTier{
			MaxValue:  defaultAdaptiveMax,
			BlockSize: defaultAdaptiveBlockSize,
			Constant:  defaultTier2Constant,
			MaskWidth: defaultTier2MaskWidth,
		},
		Tier3: LaplacianTier{
			Kernel:      defaultLaplacianKernel,
			Scale:       defaultLaplacianScale,
			BlurKernelX: defaultBlurKernel,
			BlurKernelY: defaultBlurKernel,
			BlurSigmaX:  defaultBlurSigma,
			BlurSigmaY:  defaultBlurSigma,
			Cutoff:      defaultTier3Cutoff,
			MaskWidth:   defaultTier3MaskWidth,
		},
		Tier4: GradientTier{
			MaxValue:    defaultAdaptiveMax,
			BlockSize:   defaultTier4BlockSize,
			Constant:    defaultTier4Constant,
			Power:       defaultTier4Power,
			BlurKernelX: defaultBlurKernel,
			BlurKernelY: defaultBlurKernel,
			BlurSigmaX:  defaultBlurSigma,
			BlurSigmaY:  defaultBlurSigma,
			Thinning:    defaultTier4Thinning,
			MaskWidth:   defaultTier4MaskWidth,
		},
	}
}
