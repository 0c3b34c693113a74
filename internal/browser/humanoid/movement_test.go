package humanoid

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// -- MoveTo Tests --

func TestMoveToLandsInsideElement(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 42)

	require.NoError(t, h.MoveTo(context.Background(), "#submit", nil))

	// Default mock geometry is a 120x40 box at (300, 400). Tremor and drift
	// can push individual samples a few pixels past the border, so allow a
	// small margin.
	pos := h.Position()
	const margin = 8.0
	assert.GreaterOrEqual(t, pos.X, 300.0-margin)
	assert.LessOrEqual(t, pos.X, 420.0+margin)
	assert.GreaterOrEqual(t, pos.Y, 400.0-margin)
	assert.LessOrEqual(t, pos.Y, 440.0+margin)

	var moves int
	for _, ev := range mock.events() {
		require.Equal(t, schemas.MouseMove, ev.Type, "a plain move must not press any button")
		moves++
	}
	assert.Greater(t, moves, 5, "the approach must be sampled, not teleported")
}

func TestMoveToVectorReachesTarget(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 7)
	target := Vector2D{X: 800, Y: 550}

	require.NoError(t, h.MoveToVector(context.Background(), target, nil))

	assert.InDelta(t, target.X, h.Position().X, 10)
	assert.InDelta(t, target.Y, h.Position().Y, 10)
}

func TestMoveToVectorShortDistanceIsNoop(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 7)
	h.SetPosition(Vector2D{X: 100, Y: 100})

	require.NoError(t, h.MoveToVector(context.Background(), Vector2D{X: 100.4, Y: 100.2}, nil))
	assert.Empty(t, mock.events(), "sub-pixel moves are dropped")
}

func TestMoveToVectorLongDistanceSplitsPhases(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 12)
	h.SetPosition(Vector2D{X: 0, Y: 0})

	// Far beyond the correction threshold; the ballistic phase misses by a
	// few percent and the corrective phase settles on the target.
	target := Vector2D{X: 900, Y: 600}
	require.NoError(t, h.MoveToVector(context.Background(), target, nil))

	assert.InDelta(t, target.X, h.Position().X, 10)
	assert.InDelta(t, target.Y, h.Position().Y, 10)

	// A single jittered path holds at most 2*PathPointsMax-1 samples, so a
	// count beyond that proves the movement was split into two phases.
	assert.Greater(t, len(mock.events()), 2*DefaultConfig().PathPointsMax-1,
		"a split movement produces more samples than one path can hold")
}

func TestMoveToPropagatesGeometryFailure(t *testing.T) {
	mock := newMockExecutor(t)
	mock.MockGetElementGeometry = func(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
		return nil, assert.AnError
	}

	h := NewTestHumanoid(mock, 2)
	err := h.MoveTo(context.Background(), "#gone", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to locate target")
}

func TestMoveToRejectsZeroSizeElement(t *testing.T) {
	mock := newMockExecutor(t)
	mock.MockGetElementGeometry = func(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
		return &schemas.ElementGeometry{
			Vertices: []float64{10, 10, 10, 10, 10, 10, 10, 10},
			Width:    0,
			Height:   0,
		}, nil
	}

	h := NewTestHumanoid(mock, 2)
	err := h.MoveTo(context.Background(), "#collapsed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not interactable")
}

func TestMoveToSkipsScrollWhenOptedOut(t *testing.T) {
	mock := newMockExecutor(t)
	var mu sync.Mutex
	scriptCalls := 0
	mock.MockExecuteScript = func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
		mu.Lock()
		scriptCalls++
		mu.Unlock()
		return mock.DefaultExecuteScript(ctx, script, args)
	}

	h := NewTestHumanoid(mock, 4)
	opts := &InteractionOptions{SkipScrollIntoView: true}
	require.NoError(t, h.MoveTo(context.Background(), "#visible", opts))

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, scriptCalls, "opting out must suppress the scroll probe entirely")
}

func TestMoveToScrollsByDefault(t *testing.T) {
	mock := newMockExecutor(t)
	var mu sync.Mutex
	scriptCalls := 0
	mock.MockExecuteScript = func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
		mu.Lock()
		scriptCalls++
		mu.Unlock()
		return mock.DefaultExecuteScript(ctx, script, args)
	}

	h := NewTestHumanoid(mock, 4)
	require.NoError(t, h.MoveTo(context.Background(), "#below-fold", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, scriptCalls, "the default path checks visibility before aiming")
}

// -- Target Point Tests --

func TestCalculateTargetPointStaysInsideElement(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 77)

	geo := &schemas.ElementGeometry{
		Vertices: []float64{300, 400, 420, 400, 420, 440, 300, 440},
		Width:    120,
		Height:   40,
	}
	center := Vector2D{X: 360, Y: 420}

	for i := 0; i < 2000; i++ {
		pt := h.calculateTargetPoint(geo, center)
		assert.GreaterOrEqual(t, pt.X, 300.0)
		assert.LessOrEqual(t, pt.X, 420.0)
		assert.GreaterOrEqual(t, pt.Y, 400.0)
		assert.LessOrEqual(t, pt.Y, 440.0)
	}
}

func TestCalculateTargetPointSpreadsAim(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 78)

	geo := &schemas.ElementGeometry{
		Vertices: []float64{0, 0, 200, 0, 200, 100, 0, 100},
		Width:    200,
		Height:   100,
	}
	center := Vector2D{X: 100, Y: 50}

	seen := make(map[Vector2D]bool)
	for i := 0; i < 50; i++ {
		seen[h.calculateTargetPoint(geo, center)] = true
	}
	assert.Greater(t, len(seen), 40, "aim points must not collapse onto a single pixel")
}

func TestCalculateTargetPointDegenerateGeometry(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 1)

	center := Vector2D{X: 10, Y: 20}
	assert.Equal(t, center, h.calculateTargetPoint(nil, center))
	assert.Equal(t, center, h.calculateTargetPoint(&schemas.ElementGeometry{Width: 0, Height: 50}, center))
}
