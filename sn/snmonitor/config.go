package snmonitor

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MinTimeout is the floor applied to every debounce and repeat period.
const MinTimeout = 100 * time.Millisecond

// FloorTimeout returns d, raised to [MinTimeout] if smaller.
func FloorTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

// Liveness is the kind of liveness condition configured for a subject.
type Liveness uint8

const (
	LivenessNone Liveness = iota

	// Signal every detected publication on the subject.
	LivenessPublished

	// Signal when the subject stops receiving traffic.
	LivenessNotPublished
)

func (l Liveness) String() string {
	switch l {
	case LivenessNone:
		return "none"
	case LivenessPublished:
		return "published"
	case LivenessNotPublished:
		return "not published"
	default:
		return fmt.Sprintf("Liveness(%d)", uint8(l))
	}
}

// ParseLiveness accepts "published", "not published", "not_published",
// and "none" or the empty string, case-insensitively.
func ParseLiveness(s string) (Liveness, error) {
	norm := strings.Join(strings.Fields(strings.ReplaceAll(strings.ToLower(s), "_", " ")), " ")
	switch norm {
	case "", "none":
		return LivenessNone, nil
	case "published":
		return LivenessPublished, nil
	case "not published":
		return LivenessNotPublished, nil
	}
	return LivenessNone, fmt.Errorf("unknown liveness condition %q (want \"published\" or \"not published\")", s)
}

// Config is the per-subject monitor configuration.
type Config struct {
	Subject string

	// Messages beyond this rate are not evaluated by content expressions.
	// Zero disables throttling.
	ThrottleHz float64

	Liveness Liveness

	// Debounce and repeat period for the liveness condition.
	// Values below MinTimeout are raised to it.
	Timeout time.Duration

	SafetyCritical       bool
	DefaultNotifications bool

	// Positions of the executor steps to run for the liveness condition.
	// Nil means all steps.
	ProcessIndices []int

	RepeatExec bool

	Tags []string
}

// LambdaConfig configures one content expression on a subject.
type LambdaConfig struct {
	Expression string

	// Values below MinTimeout are raised to it.
	Timeout time.Duration

	SafetyCritical       bool
	DefaultNotifications bool

	// Only act while the subject is currently live.
	WhenPublished bool

	ProcessIndices []int
	RepeatExec     bool
	Tags           []string
}

func (c Config) validate() error {
	var err error
	if c.Subject == "" {
		err = errors.Join(err, errors.New("Config.Subject must not be empty"))
	}
	if c.ThrottleHz < 0 {
		err = errors.Join(err, fmt.Errorf("Config.ThrottleHz must not be negative (got %v)", c.ThrottleHz))
	}
	if c.Liveness > LivenessNotPublished {
		err = errors.Join(err, fmt.Errorf("Config.Liveness is invalid: %s", c.Liveness))
	}
	for _, i := range c.ProcessIndices {
		if i < 0 {
			err = errors.Join(err, fmt.Errorf("Config.ProcessIndices must not contain negative values (got %d)", i))
			break
		}
	}
	return err
}

func (c Config) normalized() Config {
	c.Timeout = FloorTimeout(c.Timeout)
	c.ProcessIndices = slices.Clone(c.ProcessIndices)
	c.Tags = slices.Clone(c.Tags)
	return c
}

func (c LambdaConfig) normalized() LambdaConfig {
	c.Timeout = FloorTimeout(c.Timeout)
	c.ProcessIndices = slices.Clone(c.ProcessIndices)
	c.Tags = slices.Clone(c.Tags)
	return c
}

// seconds renders d as a plain number of seconds for event text.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
