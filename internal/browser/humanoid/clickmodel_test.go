package humanoid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// -- IntelligentClick Tests --

func TestIntelligentClickSequence(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 42)

	require.NoError(t, h.IntelligentClick(context.Background(), "#submit", nil))

	events := mock.events()
	pressIdx, releaseIdx := -1, -1
	lastMoveBeforePress := -1
	for i, ev := range events {
		switch ev.Type {
		case schemas.MousePress:
			require.Equal(t, -1, pressIdx, "exactly one press expected")
			pressIdx = i
		case schemas.MouseRelease:
			require.Equal(t, -1, releaseIdx, "exactly one release expected")
			releaseIdx = i
		case schemas.MouseMove:
			if pressIdx == -1 {
				lastMoveBeforePress = i
			}
		}
	}

	require.NotEqual(t, -1, pressIdx, "click must press")
	require.NotEqual(t, -1, releaseIdx, "click must release")
	assert.Greater(t, releaseIdx, pressIdx, "release follows press")
	assert.NotEqual(t, -1, lastMoveBeforePress, "the pointer approaches before pressing")

	press := events[pressIdx]
	release := events[releaseIdx]
	assert.Equal(t, schemas.ButtonLeft, press.Button)
	assert.Equal(t, 1, press.ClickCount)
	assert.Equal(t, int64(1), press.Buttons)
	assert.Equal(t, int64(0), release.Buttons)

	// The release drifts only slightly off the press position.
	assert.InDelta(t, press.X, release.X, 10)
	assert.InDelta(t, press.Y, release.Y, 10)
}

func TestIntelligentClickPressesInsideElement(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 5)

	require.NoError(t, h.IntelligentClick(context.Background(), "#submit", nil))

	for _, ev := range mock.events() {
		if ev.Type != schemas.MousePress {
			continue
		}
		// Default mock geometry is a 120x40 box at (300, 400).
		const margin = 8.0
		assert.GreaterOrEqual(t, ev.X, 300.0-margin)
		assert.LessOrEqual(t, ev.X, 420.0+margin)
		assert.GreaterOrEqual(t, ev.Y, 400.0-margin)
		assert.LessOrEqual(t, ev.Y, 440.0+margin)
	}
}

func TestIntelligentClickRestoresButtonState(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 8)

	require.NoError(t, h.IntelligentClick(context.Background(), "#submit", nil))
	assert.Equal(t, schemas.ButtonNone, h.currentButtonState)

	// A follow-up move must not carry a stale button bit.
	require.NoError(t, h.MoveToVector(context.Background(), Vector2D{X: 50, Y: 50}, nil))
	events := mock.events()
	for _, ev := range events[len(events)-3:] {
		assert.Equal(t, int64(0), ev.Buttons)
	}
}

func TestIntelligentClickPropagatesDispatchFailure(t *testing.T) {
	mock := newMockExecutor(t)
	mock.returnErr = assert.AnError

	h := NewTestHumanoid(mock, 2)
	assert.Error(t, h.IntelligentClick(context.Background(), "#submit", nil))
}

// -- ClickAt Tests --

func TestClickAtPressesNearCoordinate(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 11)
	target := Vector2D{X: 640, Y: 360}

	require.NoError(t, h.ClickAt(context.Background(), target, nil))

	var pressed bool
	for _, ev := range mock.events() {
		if ev.Type != schemas.MousePress {
			continue
		}
		pressed = true
		assert.InDelta(t, target.X, ev.X, 10)
		assert.InDelta(t, target.Y, ev.Y, 10)
	}
	assert.True(t, pressed)
}

// -- Hold Duration Tests --

func TestClickHoldDurationWithinConfiguredBounds(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 13)

	minHold := time.Duration(h.dynamicConfig.ClickHoldMinMs) * time.Millisecond
	maxHold := time.Duration(h.dynamicConfig.ClickHoldMaxMs) * time.Millisecond

	seen := make(map[time.Duration]bool)
	for i := 0; i < 1000; i++ {
		d := h.clickHoldDuration()
		assert.GreaterOrEqual(t, d, minHold)
		assert.LessOrEqual(t, d, maxHold)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 10, "hold durations must vary")
}

func TestClickHoldDurationDegenerateBounds(t *testing.T) {
	mock := newMockExecutor(t)
	h := NewTestHumanoid(mock, 13)
	h.dynamicConfig.ClickHoldMinMs = 80
	h.dynamicConfig.ClickHoldMaxMs = 80

	assert.Equal(t, 80*time.Millisecond, h.clickHoldDuration())
}
