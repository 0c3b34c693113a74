// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"go.uber.org/zap"
)

// Humanoid holds the state for simulating human-like interactions on top of
// an Executor. One instance serves one browser session.
type Humanoid struct {
	// mu serializes all humanoid state. Public methods lock for the whole
	// action; lowercase internals assume the lock is held.
	mu                 sync.Mutex
	baseConfig         Config
	dynamicConfig      Config
	logger             *zap.Logger
	executor           Executor
	currentPos         Vector2D
	currentButtonState schemas.MouseButton
	fatigueLevel       float64
	rng                *rand.Rand
	noiseX             *perlin.Perlin
	noiseY             *perlin.Perlin
	driftX             *PinkNoise
	driftY             *PinkNoise
}

var _ Controller = (*Humanoid)(nil)

// New creates and initializes a new Humanoid instance. If config.Rng is nil a
// time-seeded source is used; either way the perlin generators get a unique
// seed so two instances never share a drift pattern.
func New(config Config, logger *zap.Logger, executor Executor) *Humanoid {
	h := &Humanoid{
		logger:   logger,
		executor: executor,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seed := time.Now().UnixNano()
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}

	config.NormalizeTypoRates()
	config.FinalizeSessionPersona(rng)

	// Standard Perlin noise parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	h.baseConfig = config
	h.dynamicConfig = config
	h.rng = rng
	h.currentButtonState = schemas.ButtonNone
	h.noiseX = perlin.NewPerlin(alpha, beta, n, seed)
	h.noiseY = perlin.NewPerlin(alpha, beta, n, seed+1)
	h.driftX = NewPinkNoise(rng, 12)
	h.driftY = NewPinkNoise(rng, 12)

	return h
}

// NewTestHumanoid creates a Humanoid with fully deterministic dependencies.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	config := DefaultConfig()
	config.Rng = rand.New(rand.NewSource(seed))

	h := New(config, zap.NewNop(), executor)

	h.mu.Lock()
	defer h.mu.Unlock()

	// Re-seed the noise generators; New seeds them from the clock.
	h.noiseX = perlin.NewPerlin(2, 2, 3, seed)
	h.noiseY = perlin.NewPerlin(2, 2, 3, seed+1)

	// Pin the sampled persona so test expectations stay stable.
	h.dynamicConfig.FittsA = 100.0
	h.dynamicConfig.FittsB = 150.0
	h.dynamicConfig.PerlinAmplitude = 2.0
	h.dynamicConfig.GaussianStrength = 0.5
	h.baseConfig.FittsA = 100.0
	h.baseConfig.FittsB = 150.0
	h.baseConfig.PerlinAmplitude = 2.0
	h.baseConfig.GaussianStrength = 0.5

	return h
}

// Position returns the current simulated cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// SetPosition teleports the simulated cursor, e.g. after a fresh navigation
// reset the cursor to wherever the real one was left.
func (h *Humanoid) SetPosition(pos Vector2D) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentPos = pos
}

// ensureVisible scrolls the target into view unless the options opt out.
// Assumes the caller holds the lock.
func (h *Humanoid) ensureVisible(ctx context.Context, selector string, opts *InteractionOptions) error {
	if opts != nil && opts.SkipScrollIntoView {
		return nil
	}
	return h.intelligentScroll(ctx, selector)
}
