// Package snconfig parses the YAML file that lists the monitored subjects.
//
// The document is a sequence of entries:
//
//	# sentor.yaml
//	- name: /battery
//	  signal_when:
//	    condition: not published
//	    timeout: 2
//	    safety_critical: true
//	  signal_lambdas:
//	    - expression: msg.voltage < 10.0
//	      timeout: 1
//	  execute:
//	    - call:
//	        service_name: /robot/dock
//	        service_args: ["req.force = true"]
//	  lock_exec: true
//
// Problems with an entry itself fail the whole parse.
// Problems with one step of an entry's execute list only drop that step;
// they are reported in [Entry.StepErrors].
package snconfig

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gordian-engine/gsentor/sn/snaction"
	"github.com/gordian-engine/gsentor/sn/snmonitor"
	"gopkg.in/yaml.v3"
)

// Entry is the parsed configuration of one monitored subject.
type Entry struct {
	Monitor snmonitor.Config
	Lambdas []snmonitor.LambdaConfig

	Steps      []snaction.Step
	StepErrors []snaction.StepConfigError

	LockExec bool

	// Entries with Include unset are parsed but not monitored.
	Include bool

	// Line of the entry in the source document, for reporting.
	Line int
}

// ParseError reports an invalid entry.
// Path locates the offending value, e.g. "[2].signal_when.condition".
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d): %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// Load reads and parses the file at path.
func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse parses a configuration document.
// An empty document has no entries.
func Parse(data []byte) ([]Entry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ParseError{Path: "$", Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, ParseError{Path: "$", Line: root.Line, Err: errors.New("document must be a list of subject entries")}
	}

	entries := make([]Entry, 0, len(root.Content))
	var err error
	for i, n := range root.Content {
		e, entryErr := parseEntry(n, fmt.Sprintf("[%d]", i))
		if entryErr != nil {
			err = errors.Join(err, entryErr)
			continue
		}
		entries = append(entries, e)
	}
	if err != nil {
		return nil, err
	}

	return entries, nil
}

type rawEntry struct {
	Name                 string         `yaml:"name"`
	SignalWhen           rawSignalWhen  `yaml:"signal_when"`
	SignalLambdas        []rawLambda    `yaml:"signal_lambdas"`
	Execute              []yaml.Node    `yaml:"execute"`
	LockExec             bool           `yaml:"lock_exec"`
	Timeout              float64        `yaml:"timeout"`
	Include              *bool          `yaml:"include"`
	Rate                 float64        `yaml:"rate"`
	SafetyCritical       bool           `yaml:"safety_critical"`
	DefaultNotifications *bool          `yaml:"default_notifications"`
	Tags                 []string       `yaml:"tags"`
	Extra                map[string]any `yaml:",inline"`
}

// rawSignalWhen accepts either a bare condition string
// or a mapping with the condition and its settings.
type rawSignalWhen struct {
	Condition            string   `yaml:"condition"`
	Timeout              *float64 `yaml:"timeout"`
	SafetyCritical       *bool    `yaml:"safety_critical"`
	DefaultNotifications *bool    `yaml:"default_notifications"`
	ProcessIndices       []int    `yaml:"process_indices"`
	RepeatExec           bool     `yaml:"repeat_exec"`
	Tags                 []string `yaml:"tags"`
}

func (s *rawSignalWhen) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		s.Condition = n.Value
		return nil
	}

	// Decode through an alias type to avoid recursing into this method.
	type plain rawSignalWhen
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = rawSignalWhen(p)
	return nil
}

type rawLambda struct {
	Expression           string   `yaml:"expression"`
	File                 string   `yaml:"file"`
	Timeout              *float64 `yaml:"timeout"`
	SafetyCritical       bool     `yaml:"safety_critical"`
	DefaultNotifications *bool    `yaml:"default_notifications"`
	WhenPublished        bool     `yaml:"when_published"`
	ProcessIndices       []int    `yaml:"process_indices"`
	RepeatExec           bool     `yaml:"repeat_exec"`
	Tags                 []string `yaml:"tags"`
}

func parseEntry(n *yaml.Node, path string) (Entry, error) {
	if n.Kind != yaml.MappingNode {
		return Entry{}, ParseError{Path: path, Line: n.Line, Err: errors.New("entry must be a mapping")}
	}

	var raw rawEntry
	if err := n.Decode(&raw); err != nil {
		return Entry{}, ParseError{Path: path, Line: n.Line, Err: err}
	}

	if raw.Name == "" {
		return Entry{}, ParseError{Path: path + ".name", Line: n.Line, Err: errors.New("subject name is not specified")}
	}
	if raw.Rate < 0 {
		return Entry{}, ParseError{Path: path + ".rate", Line: n.Line, Err: fmt.Errorf("rate must not be negative (got %v)", raw.Rate)}
	}
	if len(raw.Extra) > 0 {
		k := slices.Sorted(maps.Keys(raw.Extra))[0]
		return Entry{}, ParseError{Path: path + "." + k, Line: n.Line, Err: errors.New("unknown key")}
	}

	defNots := true
	if raw.DefaultNotifications != nil {
		defNots = *raw.DefaultNotifications
	}

	e := Entry{
		LockExec: raw.LockExec,
		Include:  raw.Include == nil || *raw.Include,
		Line:     n.Line,
	}

	mc, err := monitorConfig(raw, defNots)
	if err != nil {
		return Entry{}, ParseError{Path: path + ".signal_when", Line: n.Line, Err: err}
	}
	e.Monitor = mc

	for i, l := range raw.SignalLambdas {
		lpath := fmt.Sprintf("%s.signal_lambdas[%d]", path, i)
		if l.File != "" {
			return Entry{}, ParseError{Path: lpath + ".file", Line: n.Line, Err: errors.New("expressions must be given inline")}
		}
		if strings.TrimSpace(l.Expression) == "" {
			return Entry{}, ParseError{Path: lpath + ".expression", Line: n.Line, Err: errors.New("expression must not be empty")}
		}

		lc := snmonitor.LambdaConfig{
			Expression:           l.Expression,
			Timeout:              secondsToDuration(raw.Timeout),
			SafetyCritical:       l.SafetyCritical,
			DefaultNotifications: defNots,
			WhenPublished:        l.WhenPublished,
			ProcessIndices:       l.ProcessIndices,
			RepeatExec:           l.RepeatExec,
			Tags:                 l.Tags,
		}
		if l.Timeout != nil {
			lc.Timeout = secondsToDuration(*l.Timeout)
		}
		if l.DefaultNotifications != nil {
			lc.DefaultNotifications = *l.DefaultNotifications
		}
		e.Lambdas = append(e.Lambdas, lc)
	}

	for i := range raw.Execute {
		s, err := parseStep(&raw.Execute[i])
		if err != nil {
			var sce snaction.StepConfigError
			if !errors.As(err, &sce) {
				sce = snaction.StepConfigError{Kind: "unknown", Err: err}
			}
			sce.Index = i
			e.StepErrors = append(e.StepErrors, sce)
			continue
		}
		e.Steps = append(e.Steps, s)
	}

	return e, nil
}

func monitorConfig(raw rawEntry, defNots bool) (snmonitor.Config, error) {
	sw := raw.SignalWhen

	liveness, err := snmonitor.ParseLiveness(sw.Condition)
	if err != nil {
		return snmonitor.Config{}, err
	}

	c := snmonitor.Config{
		Subject:              raw.Name,
		ThrottleHz:           raw.Rate,
		Liveness:             liveness,
		Timeout:              secondsToDuration(raw.Timeout),
		SafetyCritical:       raw.SafetyCritical,
		DefaultNotifications: defNots,
		ProcessIndices:       sw.ProcessIndices,
		RepeatExec:           sw.RepeatExec,
		Tags:                 raw.Tags,
	}
	if sw.Timeout != nil {
		c.Timeout = secondsToDuration(*sw.Timeout)
	}
	if sw.SafetyCritical != nil {
		c.SafetyCritical = *sw.SafetyCritical
	}
	if sw.DefaultNotifications != nil {
		c.DefaultNotifications = *sw.DefaultNotifications
	}
	if sw.Tags != nil {
		c.Tags = sw.Tags
	}
	for _, i := range c.ProcessIndices {
		if i < 0 {
			return snmonitor.Config{}, fmt.Errorf("process_indices must not be negative (got %d)", i)
		}
	}

	return c, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
