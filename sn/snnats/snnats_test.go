package snnats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gordian-engine/gsentor/sn/snaction"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/stretchr/testify/require"
)

func TestMessageFromNATS(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m := nats.NewMsg("/battery")
	m.Data = []byte(`{"voltage":9}`)
	m.Header.Set(HeaderNode, "bms")

	got := messageFromNATS(m, now)
	require.Equal(t, "/battery", got.Subject)
	require.Equal(t, "bms", got.Publisher)
	require.Equal(t, now, got.Received)
	require.JSONEq(t, `{"voltage":9}`, string(got.Data))

	// Messages from publishers without headers have no publisher.
	got = messageFromNATS(&nats.Msg{Subject: "/x"}, now)
	require.Empty(t, got.Publisher)
}

func TestDecodeServiceResponse(t *testing.T) {
	t.Parallel()

	resp, err := decodeServiceResponse(&nats.Msg{Data: []byte(`{"success":true,"message":"docked"}`)})
	require.NoError(t, err)
	require.Equal(t, snaction.ServiceResponse{Success: true, Message: "docked"}, resp)

	resp, err = decodeServiceResponse(&nats.Msg{})
	require.NoError(t, err)
	require.False(t, resp.Success)

	_, err = decodeServiceResponse(&nats.Msg{Data: []byte(`not json`)})
	require.Error(t, err)

	m := nats.NewMsg("reply")
	m.Header.Set(micro.ErrorHeader, "dock busy")
	m.Header.Set(micro.ErrorCodeHeader, "503")
	_, err = decodeServiceResponse(m)
	require.ErrorContains(t, err, "503")
	require.ErrorContains(t, err, "dock busy")
}

func TestParseGoalUpdate(t *testing.T) {
	t.Parallel()

	for status, want := range map[string]struct {
		st       snaction.GoalStatus
		terminal bool
	}{
		"succeeded": {snaction.GoalSucceeded, true},
		"preempted": {snaction.GoalPreempted, true},
		"aborted":   {snaction.GoalAborted, true},
		"active":    {snaction.GoalStatusUnknown, false},
		"pending":   {snaction.GoalStatusUnknown, false},
	} {
		b, err := json.Marshal(GoalUpdate{ID: "g1", Status: status})
		require.NoError(t, err)

		st, terminal, err := parseGoalUpdate(b, "g1")
		require.NoError(t, err, status)
		require.Equal(t, want.st, st, status)
		require.Equal(t, want.terminal, terminal, status)
	}

	_, _, err := parseGoalUpdate([]byte(`{"id":"other","status":"succeeded"}`), "g1")
	require.Error(t, err)

	_, _, err = parseGoalUpdate([]byte(`{`), "g1")
	require.Error(t, err)
}

func TestHasEndpoint(t *testing.T) {
	t.Parallel()

	infos := []micro.Info{
		{Endpoints: []micro.EndpointInfo{{Name: "dock", Subject: "/robot/dock"}}},
		{Endpoints: []micro.EndpointInfo{{Name: "goal", Subject: GoalSubject("/move_base")}}},
	}

	require.True(t, hasEndpoint(infos, "/robot/dock"))
	require.True(t, hasEndpoint(infos, "/move_base.goal"))
	require.False(t, hasEndpoint(infos, "/robot/undock"))
	require.False(t, hasEndpoint(nil, "/robot/dock"))
}

func TestGoalRequest_wireFormat(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(GoalRequest{
		ID:            "g1",
		Spec:          "MoveBaseAction",
		Goal:          json.RawMessage(`{"x":1}`),
		StatusSubject: "_INBOX.abc",
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"g1","spec":"MoveBaseAction","goal":{"x":1},"status_subject":"_INBOX.abc"}`, string(b))
}
