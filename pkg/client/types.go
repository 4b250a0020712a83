package client

import "time"

// Error codes returned by the daemon alongside error messages.
const (
	CodeBadRequest        = "bad_request"
	CodeUnknownContainer  = "unknown_container"
	CodeInvalidTransition = "invalid_transition"
)

// APIError is an error response from the daemon.
type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string { return e.Message }

// TransitionRecord is one row of a container's persisted transition log.
type TransitionRecord struct {
	ID          int64     `json:"ID"`
	ContainerID string    `json:"ContainerID"`
	Name        string    `json:"Name"`
	State       string    `json:"State"`
	Restarts    int       `json:"Restarts"`
	OccurredAt  time.Time `json:"OccurredAt"`
}
