// internal/browser/humanoid/noise.go
package humanoid

import (
	"math"
	"math/rand"
)

// PinkNoise produces 1/f noise with the stochastic Voss-McCartney scheme.
// Hands at rest wander with the long-range correlation of pink noise, not
// the jitter of white noise, so idle pointer drift samples from this.
type PinkNoise struct {
	rng     *rand.Rand
	level   []float64 // current output of each white source
	weight  []float64 // chance that a step updates the source
	sum     float64   // running total across sources
	sources int
	gain    float64
}

// NewPinkNoise builds a generator over the given source count. Counts
// below one fall back to the usual twelve octaves.
func NewPinkNoise(rng *rand.Rand, sources int) *PinkNoise {
	if sources <= 0 {
		sources = 12
	}
	pn := &PinkNoise{
		rng:     rng,
		level:   make([]float64, sources),
		weight:  make([]float64, sources),
		sources: sources,
		// Dividing by sqrt(sources) holds the output amplitude steady
		// whatever the octave count.
		gain: 1.0 / math.Sqrt(float64(sources)),
	}

	// Each octave updates half as often as the one before it.
	total := 0.0
	for i := range pn.weight {
		pn.weight[i] = math.Pow(2, float64(-i))
		total += pn.weight[i]
	}
	for i := range pn.weight {
		pn.weight[i] /= total
	}

	for i := range pn.level {
		pn.level[i] = pn.white()
		pn.sum += pn.level[i]
	}

	return pn
}

// white draws one uniform sample in [-1, 1].
func (pn *PinkNoise) white() float64 {
	return pn.rng.Float64()*2.0 - 1.0
}

// pickSource rolls which octave changes this step. The cumulative scan can
// fall off the end on float rounding, in which case the slowest octave takes
// the update.
func (pn *PinkNoise) pickSource() int {
	roll := pn.rng.Float64()
	acc := 0.0
	for i := 0; i < pn.sources; i++ {
		acc += pn.weight[i]
		if roll < acc {
			return i
		}
	}
	return pn.sources - 1
}

// Next advances the generator one step and returns the new sample.
func (pn *PinkNoise) Next() float64 {
	i := pn.pickSource()
	fresh := pn.white()
	pn.sum += fresh - pn.level[i]
	pn.level[i] = fresh

	return pn.sum * pn.gain
}
