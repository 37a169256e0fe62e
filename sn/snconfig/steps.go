package snconfig

import (
	"fmt"
	"maps"
	"strings"

	"github.com/gordian-engine/gsentor/sn/snaction"
	"gopkg.in/yaml.v3"
)

type rawCall struct {
	ServiceName string         `yaml:"service_name"`
	ServiceArgs []string       `yaml:"service_args"`
	Fields      map[string]any `yaml:"fields"`
	Message     string         `yaml:"message"`
}

type rawPublish struct {
	TopicName    string         `yaml:"topic_name"`
	Subject      string         `yaml:"subject"`
	TopicLatched bool           `yaml:"topic_latched"`
	Latched      bool           `yaml:"latched"`
	TopicArgs    []string       `yaml:"topic_args"`
	Fields       map[string]any `yaml:"fields"`
	Message      string         `yaml:"message"`
}

type rawAction struct {
	Namespace  string         `yaml:"namespace"`
	Package    string         `yaml:"package"`
	ActionSpec string         `yaml:"action_spec"`
	GoalArgs   []string       `yaml:"goal_args"`
	Fields     map[string]any `yaml:"fields"`
	Message    string         `yaml:"message"`
}

type rawSleep struct {
	Duration float64 `yaml:"duration"`
	Message  string  `yaml:"message"`
}

type rawShell struct {
	CmdArgs []string `yaml:"cmd_args"`
	Message string   `yaml:"message"`
}

// parseStep decodes one single-key mapping of an execute list.
func parseStep(n *yaml.Node) (snaction.Step, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, fmt.Errorf("line %d: step must be a mapping with exactly one key", n.Line)
	}

	kind := n.Content[0].Value
	body := n.Content[1]

	wrap := func(err error) error {
		return snaction.StepConfigError{Kind: kind, Err: fmt.Errorf("line %d: %w", body.Line, err)}
	}

	switch kind {
	case "call":
		var r rawCall
		if err := body.Decode(&r); err != nil {
			return nil, wrap(err)
		}
		fields, err := mergeFields(r.Fields, r.ServiceArgs)
		if err != nil {
			return nil, wrap(err)
		}
		return snaction.CallStep{Service: r.ServiceName, Fields: fields, Message: r.Message}, nil

	case "publish":
		var r rawPublish
		if err := body.Decode(&r); err != nil {
			return nil, wrap(err)
		}
		fields, err := mergeFields(r.Fields, r.TopicArgs)
		if err != nil {
			return nil, wrap(err)
		}
		subject := r.Subject
		if subject == "" {
			subject = r.TopicName
		}
		return snaction.PublishStep{
			Subject: subject,
			Latched: r.Latched || r.TopicLatched,
			Fields:  fields,
			Message: r.Message,
		}, nil

	case "action":
		var r rawAction
		if err := body.Decode(&r); err != nil {
			return nil, wrap(err)
		}
		fields, err := mergeFields(r.Fields, r.GoalArgs)
		if err != nil {
			return nil, wrap(err)
		}
		return snaction.GoalStep{
			Namespace: r.Namespace,
			Package:   r.Package,
			Spec:      r.ActionSpec,
			Fields:    fields,
			Message:   r.Message,
		}, nil

	case "sleep":
		var r rawSleep
		if err := body.Decode(&r); err != nil {
			return nil, wrap(err)
		}
		return snaction.SleepStep{Duration: secondsToDuration(r.Duration), Message: r.Message}, nil

	case "shell":
		var r rawShell
		if err := body.Decode(&r); err != nil {
			return nil, wrap(err)
		}
		return snaction.ShellStep{Command: r.CmdArgs, Message: r.Message}, nil

	default:
		return nil, snaction.StepConfigError{Kind: kind, Err: fmt.Errorf("line %d: step kind not supported", n.Line)}
	}
}

// mergeFields combines a fields mapping with assignment strings.
// Assignments are applied after the mapping.
func mergeFields(fields map[string]any, assignments []string) (map[string]any, error) {
	if len(fields) == 0 && len(assignments) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(fields)+len(assignments))
	maps.Copy(out, fields)

	for _, a := range assignments {
		path, v, err := ParseAssignment(a)
		if err != nil {
			return nil, err
		}
		out[path] = v
	}
	return out, nil
}

// ParseAssignment parses one assignment string of the form "path = value".
//
// A leading "req.", "msg.", or "goal." on the path names the object being built
// and is dropped.
// The value is decoded as a YAML scalar or flow collection,
// so "5" is a number, "True" is a boolean, and "'abc'" or "abc" is a string.
// Nothing in the value is evaluated.
func ParseAssignment(s string) (path string, value any, err error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("assignment %q has no '='", s)
	}

	path = strings.TrimSpace(lhs)
	for _, prefix := range []string{"req.", "msg.", "goal."} {
		if p, ok := strings.CutPrefix(path, prefix); ok {
			path = p
			break
		}
	}
	if path == "" || strings.ContainsAny(path, " \t()[]") {
		return "", nil, fmt.Errorf("assignment %q has an invalid field path", s)
	}

	rhs = strings.TrimSpace(rhs)
	if rhs == "" {
		return "", nil, fmt.Errorf("assignment %q has no value", s)
	}
	if err := yaml.Unmarshal([]byte(rhs), &value); err != nil {
		return "", nil, fmt.Errorf("assignment %q: decode value: %w", s, err)
	}

	return path, value, nil
}
