package websocket

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:      time.Millisecond,
		MaxDelay:          8 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestReconnectManager_BackoffGrowsAndCaps(t *testing.T) {
	rm := NewReconnectManager(testReconnectConfig(), zap.NewNop())

	assert.Equal(t, time.Millisecond, rm.currentBackoff)

	rm.incrementBackoff()
	assert.Equal(t, 2*time.Millisecond, rm.currentBackoff)

	rm.incrementBackoff()
	rm.incrementBackoff()
	assert.Equal(t, 8*time.Millisecond, rm.currentBackoff)

	// Capped at MaxDelay.
	rm.incrementBackoff()
	assert.Equal(t, 8*time.Millisecond, rm.currentBackoff)

	rm.Reset()
	assert.Equal(t, time.Millisecond, rm.currentBackoff)
}

func TestReconnectManager_JitterBounds(t *testing.T) {
	cfg := testReconnectConfig()
	cfg.JitterPercent = 0.2
	rm := NewReconnectManager(cfg, zap.NewNop())

	for i := 0; i < 50; i++ {
		backoff := rm.nextBackoff()
		assert.GreaterOrEqual(t, backoff, time.Millisecond)
		assert.LessOrEqual(t, backoff, time.Duration(float64(time.Millisecond)*1.2))
	}
}

func TestReconnectManager_RetriesUntilSuccess(t *testing.T) {
	rm := NewReconnectManager(testReconnectConfig(), zap.NewNop())

	attempts := 0
	err := rm.Reconnect(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("still down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Success resets the backoff.
	assert.Equal(t, time.Millisecond, rm.currentBackoff)
}

func TestReconnectManager_ContextCancel(t *testing.T) {
	rm := NewReconnectManager(testReconnectConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rm.Reconnect(ctx, func(ctx context.Context) error {
		return fmt.Errorf("never reached")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
