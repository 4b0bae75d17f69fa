package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	val := []byte(`[{"date":"2025-06-06","close":123.45}]`)
	require.NoError(t, m.Set(ctx, "history:v1:AAPL:daily:2025-06-06", val, time.Minute))

	got, ok, err := m.Get(ctx, "history:v1:AAPL:daily:2025-06-06")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, val, got)
}

func TestMemory_MissAndExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "expired entry must read as a miss")
}

func TestMemory_ZeroTTLNotStored(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	_, ok, _ := m.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemory_MaxItemsCap(t *testing.T) {
	m := NewMemory()
	m.MaxItems = 10
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
	}

	m.mu.RLock()
	n := len(m.items)
	m.mu.RUnlock()
	require.LessOrEqual(t, n, 10)
}
