package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubExchange struct {
	balance int64
	err     error
}

func (s *stubExchange) GetBalance(context.Context) (int64, error) {
	return s.balance, s.err
}

func validConfig(t *testing.T, ex BalanceFetcher) *Config {
	t.Helper()
	return &Config{
		CheckInterval:   time.Minute,
		OrderMultiplier: 3.0,
		MinCents:        1000,
		HysteresisRatio: 1.5,
		Exchange:        ex,
		Logger:          zaptest.NewLogger(t),
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 100_000}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid"},
		{name: "nil-exchange", mutate: func(c *Config) { c.Exchange = nil }, errMsg: "exchange cannot be nil"},
		{name: "nil-logger", mutate: func(c *Config) { c.Logger = nil }, errMsg: "logger cannot be nil"},
		{name: "zero-interval", mutate: func(c *Config) { c.CheckInterval = 0 }, errMsg: "check interval must be positive"},
		{name: "zero-multiplier", mutate: func(c *Config) { c.OrderMultiplier = 0 }, errMsg: "order multiplier must be positive"},
		{name: "zero-floor", mutate: func(c *Config) { c.MinCents = 0 }, errMsg: "min balance must be positive"},
		{name: "hysteresis-below-one", mutate: func(c *Config) { c.HysteresisRatio = 0.9 }, errMsg: "hysteresis ratio must be >= 1.0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t, ex)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			b, err := New(cfg)
			if tt.errMsg == "" {
				require.NoError(t, err)
				assert.True(t, b.IsEnabled())
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("nil-config", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil)
		require.Error(t, err)
	})
}

func TestCheckBalance_TripsBelowFloor(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 500}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	require.NoError(t, b.CheckBalance(context.Background()))
	assert.False(t, b.IsEnabled())

	st := b.GetStatus()
	assert.Equal(t, int64(500), st.LastBalance)
	assert.Equal(t, int64(1000), st.DisableThreshold)
}

func TestCheckBalance_HysteresisOnReset(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 500}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	require.NoError(t, b.CheckBalance(context.Background()))
	require.False(t, b.IsEnabled())

	// Above the floor but below floor*1.5 stays tripped.
	ex.balance = 1200
	require.NoError(t, b.CheckBalance(context.Background()))
	assert.False(t, b.IsEnabled())

	ex.balance = 1500
	require.NoError(t, b.CheckBalance(context.Background()))
	assert.True(t, b.IsEnabled())
}

func TestRecordOrder_RaisesThresholds(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 100_000}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	// Two fills averaging 1000¢ with multiplier 3 push the disable
	// threshold above the 1000¢ floor.
	b.RecordOrder(800)
	b.RecordOrder(1200)

	st := b.GetStatus()
	assert.Equal(t, int64(1000), st.AvgNotional)
	assert.Equal(t, int64(3000), st.DisableThreshold)
	assert.Equal(t, int64(4500), st.EnableThreshold)
	assert.Equal(t, 2, st.RecentFillCount)
}

func TestRecordOrder_FloorHolds(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 100_000}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	b.RecordOrder(100)

	st := b.GetStatus()
	assert.Equal(t, int64(1000), st.DisableThreshold)
}

func TestRecordOrder_WindowRolls(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 100_000}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	for i := 0; i < recentWindow; i++ {
		b.RecordOrder(100)
	}
	// Push the old small fills out of the window.
	for i := 0; i < recentWindow; i++ {
		b.RecordOrder(2000)
	}

	st := b.GetStatus()
	assert.Equal(t, recentWindow, st.RecentFillCount)
	assert.Equal(t, int64(2000), st.AvgNotional)
	assert.Equal(t, int64(6000), st.DisableThreshold)
}

func TestRecordOrder_IgnoresNonPositive(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 100_000}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	b.RecordOrder(0)
	b.RecordOrder(-5)

	assert.Equal(t, 0, b.GetStatus().RecentFillCount)
}

func TestCheckBalance_FetchErrorKeepsState(t *testing.T) {
	t.Parallel()

	ex := &stubExchange{balance: 100_000}
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	ex.err = errors.New("timeout")
	require.Error(t, b.CheckBalance(context.Background()))
	assert.True(t, b.IsEnabled())
}
