package restart

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode enumerates the supported restart policy kinds. The on-failure mode
// carries an optional retry cap; the others take no parameters.
type Mode string

const (
	ModeNever         Mode = "no"
	ModeOnFailure     Mode = "on-failure"
	ModeAlways        Mode = "always"
	ModeUnlessStopped Mode = "unless-stopped"
)

// Policy is a tagged variant: Mode selects the behavior, MaxRetries is only
// meaningful for ModeOnFailure (0 means unlimited). A Policy is attached to a
// container at registration and never changes afterwards.
type Policy struct {
	Mode       Mode `json:"mode" mapstructure:"mode"`
	MaxRetries int  `json:"max_retries,omitempty" mapstructure:"max_retries"`
}

// Never is the zero-value policy used when nothing is configured.
var Never = Policy{Mode: ModeNever}

// Parse parses a docker-style policy string: "no", "always",
// "unless-stopped", "on-failure" or "on-failure:<max>".
func Parse(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Never, nil
	}
	name, arg, hasArg := strings.Cut(s, ":")
	switch Mode(name) {
	case ModeNever:
		if hasArg {
			return Policy{}, fmt.Errorf("restart policy %q takes no argument", name)
		}
		return Never, nil
	case ModeAlways:
		if hasArg {
			return Policy{}, fmt.Errorf("restart policy %q takes no argument", name)
		}
		return Policy{Mode: ModeAlways}, nil
	case ModeUnlessStopped:
		if hasArg {
			return Policy{}, fmt.Errorf("restart policy %q takes no argument", name)
		}
		return Policy{Mode: ModeUnlessStopped}, nil
	case ModeOnFailure:
		p := Policy{Mode: ModeOnFailure}
		if hasArg {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 0 {
				return Policy{}, fmt.Errorf("invalid on-failure retry count %q", arg)
			}
			p.MaxRetries = n
		}
		return p, nil
	default:
		return Policy{}, fmt.Errorf("unknown restart policy %q", s)
	}
}

// Validate rejects malformed policies coming from config decoding.
func (p Policy) Validate() error {
	switch p.Mode {
	case "", ModeNever, ModeAlways, ModeUnlessStopped:
		if p.MaxRetries != 0 {
			return fmt.Errorf("max_retries is only valid with mode %q", ModeOnFailure)
		}
		return nil
	case ModeOnFailure:
		if p.MaxRetries < 0 {
			return fmt.Errorf("max_retries cannot be negative")
		}
		return nil
	default:
		return fmt.Errorf("unknown restart policy mode %q", p.Mode)
	}
}

func (p Policy) String() string {
	if p.Mode == ModeOnFailure && p.MaxRetries > 0 {
		return string(p.Mode) + ":" + strconv.Itoa(p.MaxRetries)
	}
	if p.Mode == "" {
		return string(ModeNever)
	}
	return string(p.Mode)
}
