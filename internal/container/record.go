package container

import (
	"time"
)

// Health is the reported probe health of a container.
type Health string

const (
	HealthNone      Health = "none"     // no probe configured
	HealthStarting  Health = "starting" // inside start-period grace
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// Record is the authoritative lifecycle record for one container.
// It is owned by the registry; mutation goes through registry methods only,
// under the owning entry's lock.
type Record struct {
	ID                 string
	Spec               Spec
	DesiredState       State
	CurrentState       State
	ExitCode           *int // nil until the container has exited at least once
	Restarts           int  // never decreases
	Health             Health
	UserStopped        bool   // last stop was requested via API/CLI
	LastError          string // last terminal condition, e.g. restart limit exceeded
	CreatedAt          time.Time
	LastTransitionTime time.Time
}

// Status is the externally consumable snapshot of a Record.
type Status struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Image         string    `json:"image"`
	State         string    `json:"state"`
	DesiredState  string    `json:"desired_state"`
	Health        string    `json:"health"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	Restarts      int       `json:"restarts"`
	RestartPolicy string    `json:"restart_policy"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastChange    time.Time `json:"last_change"`
}

// Snapshot copies the record into a Status. Callers must hold whatever lock
// guards the record.
func (r *Record) Snapshot() Status {
	var exit *int
	if r.ExitCode != nil {
		v := *r.ExitCode
		exit = &v
	}
	return Status{
		ID:            r.ID,
		Name:          r.Spec.Name,
		Image:         r.Spec.Image,
		State:         r.CurrentState.String(),
		DesiredState:  r.DesiredState.String(),
		Health:        string(r.Health),
		ExitCode:      exit,
		Restarts:      r.Restarts,
		RestartPolicy: r.Spec.RestartPolicy.String(),
		Error:         r.LastError,
		CreatedAt:     r.CreatedAt,
		LastChange:    r.LastTransitionTime,
	}
}
