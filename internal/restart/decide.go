package restart

import "fmt"

// ExitEvent describes why a container left the Running state.
// Manual is true when the stop was requested by the user through the API/CLI;
// Unhealthy is true when the health monitor forced the stop.
type ExitEvent struct {
	ExitCode  int
	Manual    bool
	Unhealthy bool
}

// Decision is the outcome of evaluating a policy against an exit event.
// When Restart is false and Err is non-nil the container is terminally
// stopped and the error is surfaced to the caller (e.g. retry cap reached).
type Decision struct {
	Restart bool
	Reason  string
	Err     error
}

// LimitError reports that a container exhausted its on-failure retry budget.
// The container stays Stopped; restarting it again requires a manual start.
type LimitError struct {
	ID  string
	Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("container %s: restart limit %d exceeded", e.ID, e.Max)
}

// Decide evaluates the policy for one exit of the named container.
// restarts is the number of restarts already performed for this container.
// The caller owns incrementing the restart counter when Restart is true.
func Decide(id string, p Policy, ev ExitEvent, restarts int) Decision {
	switch p.Mode {
	case "", ModeNever:
		return Decision{Restart: false, Reason: "policy no"}
	case ModeAlways:
		// Manual stops do not pin an always-restart container down; only
		// removal does. Restart regardless of exit code.
		return Decision{Restart: true, Reason: "policy always"}
	case ModeUnlessStopped:
		if ev.Manual {
			return Decision{Restart: false, Reason: "stopped by user"}
		}
		return Decision{Restart: true, Reason: "policy unless-stopped"}
	case ModeOnFailure:
		if ev.ExitCode == 0 && !ev.Unhealthy {
			return Decision{Restart: false, Reason: "clean exit"}
		}
		if ev.Manual {
			return Decision{Restart: false, Reason: "stopped by user"}
		}
		if p.MaxRetries > 0 && restarts >= p.MaxRetries {
			return Decision{
				Restart: false,
				Reason:  "retry budget exhausted",
				Err:     &LimitError{ID: id, Max: p.MaxRetries},
			}
		}
		return Decision{Restart: true, Reason: "non-zero exit"}
	default:
		return Decision{Restart: false, Reason: "unknown policy", Err: fmt.Errorf("unknown restart policy mode %q", p.Mode)}
	}
}
