package probe

import (
	"fmt"
	"strings"
	"time"
)

// Probe kinds. Target is interpreted per kind: a URL for http, host:port
// for tcp, and a command line for exec.
const (
	TypeHTTP = "http"
	TypeTCP  = "tcp"
	TypeExec = "exec"
)

// Defaults applied by Config.Normalize.
const (
	DefaultInterval    = 10 * time.Second
	DefaultTimeout     = 5 * time.Second
	DefaultRetries     = 3
	DefaultWindowSize  = 10
	DefaultStartPeriod = 0 * time.Second
)

// Config describes a liveness probe for one container.
// A Timeout longer than Interval is rejected at registration time so a slow
// probe can never overlap its own next tick.
type Config struct {
	Type        string        `json:"type" mapstructure:"type"`
	Target      string        `json:"target" mapstructure:"target"`
	Interval    time.Duration `json:"interval,omitempty" mapstructure:"interval"`
	Timeout     time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
	Retries     int           `json:"retries,omitempty" mapstructure:"retries"`
	StartPeriod time.Duration `json:"start_period,omitempty" mapstructure:"start_period"`
	WindowSize  int           `json:"window_size,omitempty" mapstructure:"window_size"` // retained results per container
}

// Normalize fills defaults in place. It does not validate.
func (c *Config) Normalize() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.StartPeriod < 0 {
		c.StartPeriod = DefaultStartPeriod
	}
}

// Validate checks the probe configuration. It normalizes first so defaults
// never fail validation.
func (c *Config) Validate() error {
	c.Normalize()
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case TypeHTTP, TypeTCP, TypeExec:
	case "":
		return fmt.Errorf("probe requires a type (http, tcp, exec)")
	default:
		return fmt.Errorf("unknown probe type %q", c.Type)
	}
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("probe requires a target")
	}
	if c.Timeout > c.Interval {
		return fmt.Errorf("probe timeout %s exceeds interval %s", c.Timeout, c.Interval)
	}
	return nil
}

// Build constructs the Prober for this config. Validate must have passed.
func (c *Config) Build() (Prober, error) {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case TypeHTTP:
		return HTTPProber{URL: c.Target, Timeout: c.Timeout}, nil
	case TypeTCP:
		return TCPProber{Address: c.Target, Timeout: c.Timeout}, nil
	case TypeExec:
		return ExecProber{Command: c.Target, Timeout: c.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", c.Type)
	}
}
