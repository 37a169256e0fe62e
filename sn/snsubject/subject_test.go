package snsubject_test

import (
	"testing"
	"time"

	"github.com/gordian-engine/gsentor/internal/gtest"
	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/stretchr/testify/require"
)

func TestMessage_Fields(t *testing.T) {
	t.Parallel()

	m := snsubject.Message{Subject: "/battery", Data: []byte(`{"voltage": 9.5, "cell": {"id": 2}}`)}
	f, err := m.Fields()
	require.NoError(t, err)
	require.Equal(t, 9.5, f["voltage"])
	require.Equal(t, map[string]any{"id": float64(2)}, f["cell"])

	empty, err := snsubject.Message{}.Fields()
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = snsubject.Message{Subject: "/x", Data: []byte("not json")}.Fields()
	require.ErrorContains(t, err, `"/x"`)
}

func TestFanout_skipsNil(t *testing.T) {
	t.Parallel()

	var got []string
	h := snsubject.Fanout(
		func(m snsubject.Message) { got = append(got, "a:"+m.Subject) },
		nil,
		func(m snsubject.Message) { got = append(got, "b:"+m.Subject) },
	)
	h(snsubject.Message{Subject: "/s"})
	require.Equal(t, []string{"a:/s", "b:/s"}, got)
}

func TestThrottle(t *testing.T) {
	t.Parallel()

	clk := gtest.NewMockClock()

	var n int
	h := snsubject.Throttle(func(snsubject.Message) { n++ }, 2, clk.Now)

	// Burst of one: only the first of several simultaneous messages passes.
	for range 5 {
		h(snsubject.Message{})
	}
	require.Equal(t, 1, n)

	// At 2 Hz, a new token is available every 500ms.
	clk.Add(500 * time.Millisecond)
	h(snsubject.Message{})
	h(snsubject.Message{})
	require.Equal(t, 2, n)

	clk.Add(2 * time.Second)
	h(snsubject.Message{})
	require.Equal(t, 3, n)
}

func TestThrottle_disabled(t *testing.T) {
	t.Parallel()

	var n int
	h := snsubject.Throttle(func(snsubject.Message) { n++ }, 0, time.Now)
	for range 5 {
		h(snsubject.Message{})
	}
	require.Equal(t, 5, n)
}
