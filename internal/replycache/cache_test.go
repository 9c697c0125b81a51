package replycache

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	c, err := NewRedis(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedis_MarkReplied(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	first, err := c.MarkReplied(ctx, "t1_abc")
	require.NoError(t, err)
	require.True(t, first)

	again, err := c.MarkReplied(ctx, "t1_abc")
	require.NoError(t, err)
	require.False(t, again)

	mr.FastForward(2 * time.Hour)
	expired, err := c.MarkReplied(ctx, "t1_abc")
	require.NoError(t, err)
	require.True(t, expired)
}

func TestMemory_MarkReplied(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := m.MarkReplied(ctx, "a")
	require.True(t, ok)
	ok, _ = m.MarkReplied(ctx, "a")
	require.False(t, ok)
	ok, _ = m.MarkReplied(ctx, "b")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = m.MarkReplied(ctx, "a")
	require.True(t, ok)
}

func TestNew_SelectsBackend(t *testing.T) {
	c, err := New(context.Background(), "", 0)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, c)

	_, err = New(context.Background(), "http://example.com", 0)
	require.Error(t, err)
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6380/3")
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 3, opts.DB)
}
