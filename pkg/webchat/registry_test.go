package webchat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookupRemove(t *testing.T) {
	ps := newTestPubSub(t)
	r := NewRegistry(ps)

	sess, err := r.Register(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", sess.ID)
	require.True(t, sess.fwd.IsRunning())

	got, ok := r.Get("s1")
	require.True(t, ok)
	require.Same(t, sess, got)

	// registering an existing id returns the same session
	again, err := r.Register(context.Background(), "s1")
	require.NoError(t, err)
	require.Same(t, sess, again)
	require.Equal(t, 1, r.Count())

	r.Remove("s1")
	_, ok = r.Get("s1")
	require.False(t, ok)
	require.Equal(t, 0, r.Count())

	// removing twice is a no-op
	r.Remove("s1")
}

func TestRegistry_List(t *testing.T) {
	ps := newTestPubSub(t)
	r := NewRegistry(ps)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := r.Register(context.Background(), id)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"alpha", "bravo", "charlie"}, r.List())
	require.Equal(t, 3, r.Count())

	r.Close()
	require.Empty(t, r.List())
}

func TestForwarder_StartStopIdempotent(t *testing.T) {
	ps := newTestPubSub(t)
	f := NewForwarder("s1", ps, NewConnectionPool("s1"))

	require.NoError(t, f.Start(context.Background()))
	require.NoError(t, f.Start(context.Background()))
	require.True(t, f.IsRunning())

	f.Stop()
	f.Stop()
	require.False(t, f.IsRunning())
}
