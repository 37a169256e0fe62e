package snsafety_test

import (
	"testing"

	"github.com/gordian-engine/gsentor/internal/gtest"
	"github.com/gordian-engine/gsentor/sn/snsafety"
	"github.com/stretchr/testify/require"
)

func TestRegistry_lifecycle(t *testing.T) {
	t.Parallel()

	r := snsafety.NewRegistry()
	k := snsafety.Key{Subject: "/battery", Expression: "not published"}

	require.False(t, r.SetSafe(k, false), "unregistered keys must not be created by SetSafe")
	require.True(t, r.AllSafe())

	r.Register(k, []string{"power"})
	c, ok := r.Get(k)
	require.True(t, ok)
	require.True(t, c.Safe)
	require.Equal(t, []string{"power"}, c.Tags)

	require.True(t, r.SetSafe(k, false))
	require.False(t, r.AllSafe())
	require.Equal(t, []snsafety.Condition{{Key: k, Safe: false, Tags: []string{"power"}}}, r.Violations())

	// Registering again keeps the state.
	r.Register(k, []string{"power", "dock"})
	c, _ = r.Get(k)
	require.False(t, c.Safe)
	require.Equal(t, []string{"power", "dock"}, c.Tags)

	r.Unregister(k)
	require.True(t, r.AllSafe())
	require.Empty(t, r.Snapshot())
}

func TestRegistry_sameExpressionDifferentSubjects(t *testing.T) {
	t.Parallel()

	r := snsafety.NewRegistry()
	a := snsafety.Key{Subject: "/a", Expression: "not published"}
	b := snsafety.Key{Subject: "/b", Expression: "not published"}
	r.Register(a, nil)
	r.Register(b, nil)

	r.SetSafe(a, false)

	ca, _ := r.Get(a)
	cb, _ := r.Get(b)
	require.False(t, ca.Safe)
	require.True(t, cb.Safe)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, a, snap[0].Key)
	require.Equal(t, b, snap[1].Key)
}

func TestRegistry_snapshotIsACopy(t *testing.T) {
	t.Parallel()

	r := snsafety.NewRegistry()
	k := snsafety.Key{Subject: "/a", Expression: "msg.x > 1"}
	r.Register(k, []string{"t"})

	snap := r.Snapshot()
	snap[0].Tags[0] = "mutated"
	snap[0].Safe = false

	c, _ := r.Get(k)
	require.Equal(t, []string{"t"}, c.Tags)
	require.True(t, c.Safe)
}

func TestRegistry_Changed(t *testing.T) {
	t.Parallel()

	r := snsafety.NewRegistry()
	k := snsafety.Key{Subject: "/a", Expression: "e"}

	ch := r.Changed()
	r.Register(k, nil)
	_ = gtest.ReceiveSoon(t, ch)

	ch = r.Changed()
	r.SetSafe(k, true) // No change.
	gtest.NotSending(t, ch)

	r.SetSafe(k, false)
	_ = gtest.ReceiveSoon(t, ch)
}
