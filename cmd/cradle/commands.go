package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/loykin/cradle"
)

// Exit codes surfaced to scripts. Anything else exits 1.
const (
	exitInvalidTransition = 1
	exitUnknownContainer  = 2
)

// Error codes emitted by the daemon's JSON error payloads.
const (
	codeUnknownContainer  = "unknown_container"
	codeInvalidTransition = "invalid_transition"
)

// exitError wraps an error with the process exit code to use for it.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// mapExit translates daemon error codes to CLI exit codes.
func mapExit(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeInvalidTransition:
			return &exitError{code: exitInvalidTransition, err: err}
		case codeUnknownContainer:
			return &exitError{code: exitUnknownContainer, err: err}
		}
	}
	return err
}

// command aggregates the CLI operations that talk to a running daemon.
type command struct{}

func (command) Register(flags RegisterFlags) error {
	spec := cradle.Spec{
		Name:      flags.Name,
		Image:     flags.Image,
		Env:       flags.Env,
		Ports:     flags.Ports,
		AutoStart: flags.AutoStart,
	}
	if flags.StopTimeout > 0 {
		spec.StopTimeout = flags.StopTimeout
	}
	pol, err := cradle.ParseRestartPolicy(flags.RestartPolicy)
	if err != nil {
		return err
	}
	spec.RestartPolicy = pol
	if flags.ProbeType != "" || flags.ProbeTarget != "" {
		spec.Probe = &cradle.ProbeConfig{
			Type:        flags.ProbeType,
			Target:      flags.ProbeTarget,
			Interval:    flags.ProbeInterval,
			Timeout:     flags.ProbeTimeout,
			Retries:     flags.ProbeRetries,
			StartPeriod: flags.ProbeGrace,
		}
	}

	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	var st cradle.Status
	if err := client.Register(spec, &st); err != nil {
		return mapExit(err)
	}
	fmt.Printf("registered %s (%s)\n", st.Name, st.ID)
	return nil
}

func (command) Lifecycle(op, ref string, api APIFlags) error {
	client := NewAPIClient(api.URL, api.Timeout)
	if err := client.Lifecycle(op, ref); err != nil {
		return mapExit(err)
	}
	fmt.Printf("%s: %s\n", op, ref)
	return nil
}

func (command) Status(ref string, api APIFlags) error {
	client := NewAPIClient(api.URL, api.Timeout)
	if ref != "" {
		var st cradle.Status
		if err := client.Status(ref, &st); err != nil {
			return mapExit(err)
		}
		return printJSON(st)
	}
	var sts []cradle.Status
	if err := client.Status("", &sts); err != nil {
		return mapExit(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tIMAGE\tSTATE\tHEALTH\tRESTARTS\tPOLICY\tID")
	for _, st := range sts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			st.Name, st.Image, st.State, st.Health, st.Restarts, st.RestartPolicy, st.ID)
	}
	return w.Flush()
}

func (command) Probes(ref string, api APIFlags) error {
	client := NewAPIClient(api.URL, api.Timeout)
	var results []cradle.ProbeResult
	if err := client.Probes(ref, &results); err != nil {
		return mapExit(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tRESULT\tCONSECUTIVE_FAILURES")
	for _, r := range results {
		outcome := "ok"
		if !r.Success {
			outcome = "fail"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n",
			r.Timestamp.Format(time.RFC3339), outcome, r.ConsecutiveFailures)
	}
	return w.Flush()
}

func (command) History(name string, limit int, api APIFlags) error {
	client := NewAPIClient(api.URL, api.Timeout)
	var recs []json.RawMessage
	if err := client.History(name, limit, &recs); err != nil {
		return mapExit(err)
	}
	return printJSON(recs)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
