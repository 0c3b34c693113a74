// internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/session"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

func managerForTest(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	cfg.Session.DataDir = t.TempDir()

	m, err := NewManager(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return m
}

func sessionForTest(t *testing.T, cfg *config.Config, tabCtx context.Context) *session.Session {
	t.Helper()
	s, err := session.New(session.Params{
		TabContext: tabCtx,
		TabCancel:  func() {},
		Platform:   "testplatform",
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestNewManagerRequiresConfig(t *testing.T) {
	_, err := NewManager(context.Background(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestSessionRequiresPlatformName(t *testing.T) {
	m := managerForTest(t, nil)
	_, err := m.Session(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform")
}

func TestShutdownBeforeLaunchIsClean(t *testing.T) {
	m := managerForTest(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Shutdown(ctx))
}

func TestShouldRecycle(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Session.DataDir = t.TempDir()
	cfg.Browser.RestartAfterActions = 3
	cfg.Browser.RestartAfterAge = time.Hour

	m := managerForTest(t, cfg)

	t.Run("fresh session stays", func(t *testing.T) {
		s := sessionForTest(t, cfg, context.Background())
		assert.False(t, m.shouldRecycle(s))
	})

	t.Run("action ceiling recycles", func(t *testing.T) {
		s := sessionForTest(t, cfg, context.Background())
		for i := 0; i < 3; i++ {
			s.RecordAction()
		}
		assert.True(t, m.shouldRecycle(s))
	})

	t.Run("age ceiling recycles", func(t *testing.T) {
		aged := config.NewDefaultConfig()
		aged.Session.DataDir = t.TempDir()
		aged.Browser.RestartAfterActions = 100
		aged.Browser.RestartAfterAge = time.Nanosecond

		am := managerForTest(t, aged)
		s := sessionForTest(t, aged, context.Background())
		time.Sleep(time.Millisecond)
		assert.True(t, am.shouldRecycle(s))
	})

	t.Run("dead tab recycles", func(t *testing.T) {
		tabCtx, tabCancel := context.WithCancel(context.Background())
		s := sessionForTest(t, cfg, tabCtx)
		tabCancel()
		assert.True(t, m.shouldRecycle(s))
	})

	t.Run("zero ceilings never recycle", func(t *testing.T) {
		loose := config.NewDefaultConfig()
		loose.Session.DataDir = t.TempDir()
		loose.Browser.RestartAfterActions = 0
		loose.Browser.RestartAfterAge = 0

		lm := managerForTest(t, loose)
		s := sessionForTest(t, loose, context.Background())
		for i := 0; i < 500; i++ {
			s.RecordAction()
		}
		assert.False(t, lm.shouldRecycle(s))
	})
}

func TestHumanoidFromConfigMapsKnobs(t *testing.T) {
	hc := config.HumanoidConfig{
		Enabled:                true,
		TypoRate:               0.08,
		DistractionProbability: 0.25,
		KeyPauseMeanMs:         95,
		ClickHoldMinMs:         40,
		ClickHoldMaxMs:         100,
	}
	c := HumanoidFromConfig(hc)

	assert.Equal(t, 0.08, c.TypoRateMean)
	assert.Equal(t, 0.25, c.DistractionProbability)
	assert.Equal(t, 95.0, c.KeyPauseMean)
	assert.Equal(t, 40, c.ClickHoldMinMs)
	assert.Equal(t, 100, c.ClickHoldMaxMs)
}

func TestHumanoidFromConfigKeepsDefaultsForUnsetKnobs(t *testing.T) {
	c := HumanoidFromConfig(config.HumanoidConfig{Enabled: true, TypoRate: -1})

	assert.Greater(t, c.TypoRateMean, 0.0, "default typo rate survives the -1 sentinel")
	assert.Greater(t, c.KeyPauseMean, 0.0)
	assert.Greater(t, c.ClickHoldMaxMs, 0)
}

func TestHumanoidFromConfigDisabledIsSwift(t *testing.T) {
	c := HumanoidFromConfig(config.HumanoidConfig{Enabled: false})

	assert.Zero(t, c.TypoRateMean)
	assert.Zero(t, c.DistractionProbability)
	assert.LessOrEqual(t, c.KeyPauseMax, 10.0)
	assert.Zero(t, c.ReadingMaxMs)
}
