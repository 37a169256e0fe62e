package snconfig_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gordian-engine/gsentor/sn/snaction"
	"github.com/gordian-engine/gsentor/sn/snconfig"
	"github.com/gordian-engine/gsentor/sn/snmonitor"
	"github.com/stretchr/testify/require"
)

const fullDoc = `
- name: /battery
  signal_when:
    condition: not published
    timeout: 2
    safety_critical: true
    repeat_exec: true
    process_indices: [1]
    tags: [power]
  signal_lambdas:
    - expression: msg.voltage < 10.0
      timeout: 1
      safety_critical: true
      when_published: true
      tags: [power, voltage]
    - expression: "lambda msg: msg.current > 5"
      default_notifications: false
  execute:
    - call:
        service_name: /robot/dock
        service_args: ["req.force = True", "req.target.id = 'dock-1'"]
        message: Docking.
    - publish:
        topic_name: /cmd
        topic_latched: true
        topic_args: ["msg.data = 0.5"]
    - action:
        namespace: /move_base
        package: move_base_msgs
        action_spec: MoveBaseAction
        fields:
          target_pose.pose.position.x: 1.5
    - sleep:
        duration: 0.5
    - shell:
        cmd_args: [echo, hello]
  lock_exec: true
  timeout: 3
  rate: 10

- name: /estop
  signal_when: published
  safety_critical: true
  default_notifications: false

- name: /camera
  include: false
`

func TestParse(t *testing.T) {
	t.Parallel()

	entries, err := snconfig.Parse([]byte(fullDoc))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	battery := entries[0]
	require.True(t, battery.Include)
	require.True(t, battery.LockExec)
	require.Equal(t, snmonitor.Config{
		Subject:              "/battery",
		ThrottleHz:           10,
		Liveness:             snmonitor.LivenessNotPublished,
		Timeout:              2 * time.Second,
		SafetyCritical:       true,
		DefaultNotifications: true,
		ProcessIndices:       []int{1},
		RepeatExec:           true,
		Tags:                 []string{"power"},
	}, battery.Monitor)

	require.Equal(t, []snmonitor.LambdaConfig{
		{
			Expression:           "msg.voltage < 10.0",
			Timeout:              time.Second,
			SafetyCritical:       true,
			DefaultNotifications: true,
			WhenPublished:        true,
			Tags:                 []string{"power", "voltage"},
		},
		{
			Expression: "lambda msg: msg.current > 5",
			// Inherited from the entry.
			Timeout: 3 * time.Second,
		},
	}, battery.Lambdas)

	require.Empty(t, battery.StepErrors)
	require.Equal(t, []snaction.Step{
		snaction.CallStep{
			Service: "/robot/dock",
			Fields:  map[string]any{"force": true, "target.id": "dock-1"},
			Message: "Docking.",
		},
		snaction.PublishStep{
			Subject: "/cmd",
			Latched: true,
			Fields:  map[string]any{"data": 0.5},
		},
		snaction.GoalStep{
			Namespace: "/move_base",
			Package:   "move_base_msgs",
			Spec:      "MoveBaseAction",
			Fields:    map[string]any{"target_pose.pose.position.x": 1.5},
		},
		snaction.SleepStep{Duration: 500 * time.Millisecond},
		snaction.ShellStep{Command: []string{"echo", "hello"}},
	}, battery.Steps)

	estop := entries[1]
	require.Equal(t, snmonitor.LivenessPublished, estop.Monitor.Liveness)
	require.True(t, estop.Monitor.SafetyCritical)
	require.False(t, estop.Monitor.DefaultNotifications)
	require.Empty(t, estop.Steps)

	camera := entries[2]
	require.False(t, camera.Include)
	require.Equal(t, snmonitor.LivenessNone, camera.Monitor.Liveness)
}

func TestParse_empty(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"", "\n", "# nothing\n", "~\n"} {
		entries, err := snconfig.Parse([]byte(doc))
		require.NoError(t, err, "%q", doc)
		require.Empty(t, entries)
	}
}

func TestParse_entrySafetyCriticalIsLivenessOnly(t *testing.T) {
	t.Parallel()

	entries, err := snconfig.Parse([]byte(`
- name: /scan
  signal_when: not published
  safety_critical: true
  timeout: 4
  signal_lambdas:
    - expression: msg.range < 0.2
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	scan := entries[0]
	require.True(t, scan.Monitor.SafetyCritical)
	require.Equal(t, 4*time.Second, scan.Monitor.Timeout)

	require.Len(t, scan.Lambdas, 1)
	require.False(t, scan.Lambdas[0].SafetyCritical)
	require.Equal(t, 4*time.Second, scan.Lambdas[0].Timeout)
}

func TestParse_stepErrorsDropOnlyTheStep(t *testing.T) {
	t.Parallel()

	entries, err := snconfig.Parse([]byte(`
- name: /a
  execute:
    - reboot:
        now: true
    - call:
        service_name: /x
        service_args: ["no assignment here"]
    - sleep:
        duration: 1
    - {}
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, []snaction.Step{snaction.SleepStep{Duration: time.Second}}, e.Steps)

	require.Len(t, e.StepErrors, 3)
	require.Equal(t, 0, e.StepErrors[0].Index)
	require.Equal(t, "reboot", e.StepErrors[0].Kind)
	require.Equal(t, 1, e.StepErrors[1].Index)
	require.Equal(t, "call", e.StepErrors[1].Kind)
	require.Equal(t, 3, e.StepErrors[2].Index)
}

func TestParse_entryErrors(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		doc  string
		path string
	}{
		"not a list":        {doc: "name: /a\n", path: "$"},
		"missing name":      {doc: "- timeout: 1\n", path: "[0].name"},
		"unknown condition": {doc: "- name: /a\n  signal_when: sometimes\n", path: "[0].signal_when"},
		"negative rate":     {doc: "- name: /a\n  rate: -1\n", path: "[0].rate"},
		"unknown key":       {doc: "- name: /a\n  signal_whenn: published\n", path: "[0].signal_whenn"},
		"lambda from file":  {doc: "- name: /a\n  signal_lambdas:\n    - file: f.py\n", path: "[0].signal_lambdas[0].file"},
		"empty expression":  {doc: "- name: /a\n  signal_lambdas:\n    - timeout: 1\n", path: "[0].signal_lambdas[0].expression"},
		"entry is a scalar": {doc: "- /a\n", path: "[0]"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := snconfig.Parse([]byte(tc.doc))
			require.Error(t, err)

			var pe snconfig.ParseError
			require.True(t, errors.As(err, &pe), "%T: %v", err, err)
			require.Equal(t, tc.path, pe.Path)
		})
	}
}

func TestParse_reportsEveryBadEntry(t *testing.T) {
	t.Parallel()

	_, err := snconfig.Parse([]byte("- timeout: 1\n- name: /ok\n- rate: 2\n"))
	require.ErrorContains(t, err, "[0].name")
	require.ErrorContains(t, err, "[2].name")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sentor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullDoc), 0o600))

	entries, err := snconfig.Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	_, err = snconfig.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseAssignment(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]struct {
		path  string
		value any
	}{
		"req.enable = True":        {"enable", true},
		"msg.linear.x = -0.5":      {"linear.x", -0.5},
		"goal.count=3":             {"count", 3},
		"name = 'dock'":            {"name", "dock"},
		"req.mode = manual":        {"mode", "manual"},
		"req.ids = [1, 2]":         {"ids", []any{1, 2}},
		"msg.header.frame = map":   {"header.frame", "map"},
		"req.data = \"a = b\"":     {"data", "a = b"},
		"  req.spaced   =   false": {"spaced", false},
	} {
		path, v, err := snconfig.ParseAssignment(in)
		require.NoError(t, err, in)
		require.Equal(t, want.path, path, in)
		require.Equal(t, want.value, v, in)
	}

	for _, bad := range []string{"no equals", "= 5", "req.x =", "req.f() = 1"} {
		_, _, err := snconfig.ParseAssignment(bad)
		require.Error(t, err, bad)
	}
}
