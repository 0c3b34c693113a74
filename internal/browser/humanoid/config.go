// internal/browser/humanoid/config.go
package humanoid

import (
	"math"
	"math/rand"
)

// Config holds the parameters defining the behavior of the simulation.
// The *Mean/*StdDev pairs describe a population; FinalizeSessionPersona
// samples one concrete individual from them so every session moves and
// types a little differently.
type Config struct {
	Rng *rand.Rand

	// Fitts's law parameters controlling pointer movement duration.
	FittsAMean, FittsAStdDev float64
	FittsBMean, FittsBStdDev float64

	// Noise and tremor.
	GaussianStrengthMean, GaussianStrengthStdDev float64
	PerlinAmplitudeMean, PerlinAmplitudeStdDev   float64
	ClickNoiseMean, ClickNoiseStdDev             float64

	// Typing behavior.
	TypoRateMean, TypoRateStdDev   float64
	KeyHoldMeanMs, KeyHoldStdDevMs float64

	// Sampled per-session instance parameters, set by FinalizeSessionPersona.
	FittsA, FittsB             float64
	GaussianStrength           float64
	PerlinAmplitude            float64
	ClickNoise                 float64
	TypoRate                   float64
	KeyHoldMean, KeyHoldStdDev float64

	// Clicking behavior.
	ClickHoldMinMs int `json:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `json:"click_hold_max_ms" yaml:"click_hold_max_ms"`

	// Conditional typo class probabilities. Must sum to 1; see NormalizeTypoRates.
	TypoNeighborRate               float64 `json:"typoNeighborRate" yaml:"typoNeighborRate"`
	TypoTransposeRate              float64 `json:"typoTransposeRate" yaml:"typoTransposeRate"`
	TypoOmissionRate               float64 `json:"typoOmissionRate" yaml:"typoOmissionRate"`
	TypoInsertionRate              float64 `json:"typoInsertionRate" yaml:"typoInsertionRate"`
	TypoCorrectionProbability      float64 `json:"typoCorrectionProbability" yaml:"typoCorrectionProbability"`
	TypoOmissionNoticeProbability  float64 `json:"typoOmissionNoticeProbability" yaml:"typoOmissionNoticeProbability"`
	TypoInsertionNoticeProbability float64 `json:"typoInsertionNoticeProbability" yaml:"typoInsertionNoticeProbability"`
	TypoShiftCorrectionProbability float64 `json:"typoShiftCorrectionProbability" yaml:"typoShiftCorrectionProbability"`
	TypoCorrectionPauseMeanScale   float64 `json:"typoCorrectionPauseMeanScale" yaml:"typoCorrectionPauseMeanScale"`
	TypoCorrectionPauseStdDevScale float64 `json:"typoCorrectionPauseStdDevScale" yaml:"typoCorrectionPauseStdDevScale"`

	// Inter-key delay parameters.
	KeyPauseMean          float64 `json:"keyPauseMean" yaml:"keyPauseMean"`
	KeyPauseStdDev        float64 `json:"keyPauseStdDev" yaml:"keyPauseStdDev"`
	KeyPauseMin           float64 `json:"keyPauseMin" yaml:"keyPauseMin"`
	KeyPauseMax           float64 `json:"keyPauseMax" yaml:"keyPauseMax"`
	KeyPauseNgramFactor2  float64 `json:"keyPauseNgramFactor2" yaml:"keyPauseNgramFactor2"`
	KeyPauseNgramFactor3  float64 `json:"keyPauseNgramFactor3" yaml:"keyPauseNgramFactor3"`
	KeyPauseFatigueFactor float64 `json:"keyPauseFatigueFactor" yaml:"keyPauseFatigueFactor"`

	// UCurveDepth flattens or deepens the per-word delay curve: keystrokes
	// accelerate toward the middle of a word and slow at its boundaries.
	// 0 disables the curve, 0.5 halves mid-word delays.
	UCurveDepth float64 `json:"uCurveDepth" yaml:"uCurveDepth"`

	// Pause inserted after a space, modeling inter-word thinking time.
	WordPauseMeanMs   float64 `json:"wordPauseMeanMs" yaml:"wordPauseMeanMs"`
	WordPauseStdDevMs float64 `json:"wordPauseStdDevMs" yaml:"wordPauseStdDevMs"`

	// Momentary inattention: any single inter-key delay is stretched by a
	// factor in [DistractionMinFactor, DistractionMaxFactor] with this
	// probability.
	DistractionProbability float64 `json:"distractionProbability" yaml:"distractionProbability"`
	DistractionMinFactor   float64 `json:"distractionMinFactor" yaml:"distractionMinFactor"`
	DistractionMaxFactor   float64 `json:"distractionMaxFactor" yaml:"distractionMaxFactor"`

	// Pointer path shape.
	PathPointsMin   int     `json:"pathPointsMin" yaml:"pathPointsMin"`
	PathPointsMax   int     `json:"pathPointsMax" yaml:"pathPointsMax"`
	JitterAmplitude float64 `json:"jitterAmplitude" yaml:"jitterAmplitude"`

	// Distance above which a movement is split into a ballistic main phase
	// and a short corrective phase.
	MicroCorrectionThreshold float64

	// Scrolling behavior.
	ScrollStepsMin              int     `json:"scrollStepsMin" yaml:"scrollStepsMin"`
	ScrollStepsMax              int     `json:"scrollStepsMax" yaml:"scrollStepsMax"`
	ScrollDelayFloorMs          float64 `json:"scrollDelayFloorMs" yaml:"scrollDelayFloorMs"`
	ScrollDelayCeilingMs        float64 `json:"scrollDelayCeilingMs" yaml:"scrollDelayCeilingMs"`
	ScrollMouseWheelProbability float64
	ScrollRegressionProbability float64
	ScrollOvershootProbability  float64
	ScrollReadDensityFactor     float64

	// Reading simulation envelope.
	ReadingMinMs float64 `json:"readingMinMs" yaml:"readingMinMs"`
	ReadingMaxMs float64 `json:"readingMaxMs" yaml:"readingMaxMs"`

	// Fatigue modeling.
	FatigueIncreaseRate float64
	FatigueRecoveryRate float64
}

// DefaultConfig returns a configuration representing an average user.
func DefaultConfig() Config {
	c := Config{
		Rng:                            nil,
		FittsAMean:                     100.0, FittsAStdDev: 15.0,
		FittsBMean:                     120.0, FittsBStdDev: 20.0,
		GaussianStrengthMean:           0.5, GaussianStrengthStdDev: 0.1,
		PerlinAmplitudeMean:            2.5, PerlinAmplitudeStdDev: 0.5,
		ClickNoiseMean:                 2.0, ClickNoiseStdDev: 0.5,
		TypoRateMean:                   0.04, TypoRateStdDev: 0.01,
		KeyHoldMeanMs:                  55.0, KeyHoldStdDevMs: 15.0,
		ClickHoldMinMs:                 50, ClickHoldMaxMs: 120,
		TypoNeighborRate:               0.40,
		TypoTransposeRate:              0.25,
		TypoOmissionRate:               0.20,
		TypoInsertionRate:              0.15,
		TypoCorrectionProbability:      0.85,
		TypoOmissionNoticeProbability:  0.70,
		TypoInsertionNoticeProbability: 0.80,
		TypoShiftCorrectionProbability: 0.80,
		TypoCorrectionPauseMeanScale:   1.8,
		TypoCorrectionPauseStdDevScale: 0.6,
		KeyPauseMean:                   70.0,
		KeyPauseStdDev:                 28.0,
		KeyPauseMin:                    35.0,
		KeyPauseMax:                    220.0,
		KeyPauseNgramFactor2:           0.7,
		KeyPauseNgramFactor3:           0.55,
		KeyPauseFatigueFactor:          0.3,
		UCurveDepth:                    0.35,
		WordPauseMeanMs:                140.0,
		WordPauseStdDevMs:              55.0,
		DistractionProbability:         0.10,
		DistractionMinFactor:           2.0,
		DistractionMaxFactor:           3.0,
		PathPointsMin:                  15,
		PathPointsMax:                  25,
		JitterAmplitude:                1.4,
		MicroCorrectionThreshold:       350.0,
		ScrollStepsMin:                 5,
		ScrollStepsMax:                 10,
		ScrollDelayFloorMs:             16.0,
		ScrollDelayCeilingMs:           110.0,
		ScrollMouseWheelProbability:    0.70,
		ScrollRegressionProbability:    0.10,
		ScrollOvershootProbability:     0.25,
		ScrollReadDensityFactor:        0.5,
		ReadingMinMs:                   2200.0,
		ReadingMaxMs:                   8000.0,
		FatigueIncreaseRate:            0.005,
		FatigueRecoveryRate:            0.01,
	}
	c.NormalizeTypoRates()
	return c
}

// FinalizeSessionPersona samples the fixed instance parameters for a session.
func (c *Config) FinalizeSessionPersona(rng *rand.Rand) {
	c.Rng = rng
	c.FittsA = sampleGaussian(rng, c.FittsAMean, c.FittsAStdDev)
	c.FittsB = sampleGaussian(rng, c.FittsBMean, c.FittsBStdDev)
	c.GaussianStrength = sampleGaussian(rng, c.GaussianStrengthMean, c.GaussianStrengthStdDev)
	c.PerlinAmplitude = sampleGaussian(rng, c.PerlinAmplitudeMean, c.PerlinAmplitudeStdDev)
	c.ClickNoise = sampleGaussian(rng, c.ClickNoiseMean, c.ClickNoiseStdDev)
	c.TypoRate = sampleGaussian(rng, c.TypoRateMean, c.TypoRateStdDev)
	c.KeyHoldMean = sampleGaussian(rng, c.KeyHoldMeanMs, c.KeyHoldStdDevMs)
	c.KeyHoldStdDev = c.KeyHoldStdDevMs

	// Keep sampled parameters inside sane bounds.
	c.FittsA = math.Max(40.0, c.FittsA)
	c.FittsB = math.Max(60.0, c.FittsB)
	c.GaussianStrength = math.Max(0.0, c.GaussianStrength)
	c.PerlinAmplitude = math.Max(0.0, c.PerlinAmplitude)
	c.ClickNoise = math.Max(0.0, c.ClickNoise)
	c.TypoRate = math.Max(0.0, math.Min(0.25, c.TypoRate))
	c.KeyHoldMean = math.Max(20.0, c.KeyHoldMean)

	if c.ClickHoldMaxMs <= c.ClickHoldMinMs {
		c.ClickHoldMaxMs = c.ClickHoldMinMs + 1
	}
	if c.PathPointsMin < 2 {
		c.PathPointsMin = 2
	}
	if c.PathPointsMax < c.PathPointsMin {
		c.PathPointsMax = c.PathPointsMin
	}
	if c.ScrollStepsMin < 1 {
		c.ScrollStepsMin = 1
	}
	if c.ScrollStepsMax < c.ScrollStepsMin {
		c.ScrollStepsMax = c.ScrollStepsMin
	}
	if c.KeyPauseMax < c.KeyPauseMin {
		c.KeyPauseMax = c.KeyPauseMin
	}
}

// NormalizeTypoRates ensures the conditional typo probabilities sum up to 1.
func (c *Config) NormalizeTypoRates() {
	total := c.TypoNeighborRate + c.TypoTransposeRate + c.TypoOmissionRate + c.TypoInsertionRate
	if total <= 1e-9 {
		if c.TypoRateMean > 0 || c.TypoRate > 0 {
			c.TypoNeighborRate = 0.25
			c.TypoTransposeRate = 0.25
			c.TypoOmissionRate = 0.25
			c.TypoInsertionRate = 0.25
		}
		return
	}
	c.TypoNeighborRate /= total
	c.TypoTransposeRate /= total
	c.TypoOmissionRate /= total
	c.TypoInsertionRate /= total
}

// sampleGaussian samples a value from a Gaussian distribution.
func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}
