package container

import (
	"fmt"
	"strings"
	"time"

	"github.com/loykin/cradle/internal/logger"
	"github.com/loykin/cradle/internal/probe"
	"github.com/loykin/cradle/internal/restart"
)

// Spec describes a container to be registered and tracked.
// Image pulling/building is delegated to the runtime collaborator; the spec
// only carries the reference string.
type Spec struct {
	Name          string            `json:"name" mapstructure:"name"`
	Image         string            `json:"image" mapstructure:"image"`
	Env           []string          `json:"env,omitempty" mapstructure:"env"`
	Ports         []string          `json:"ports,omitempty" mapstructure:"ports"` // "host:container[/proto]" bindings, runtime-interpreted
	Labels        map[string]string `json:"labels,omitempty" mapstructure:"labels"`
	RestartPolicy restart.Policy    `json:"restart_policy" mapstructure:"restart_policy"`
	Probe         *probe.Config     `json:"probe,omitempty" mapstructure:"probe"`
	StopTimeout   time.Duration     `json:"stop_timeout,omitempty" mapstructure:"stop_timeout"` // grace before the runtime kills (default 10s)
	AutoStart     bool              `json:"auto_start,omitempty" mapstructure:"auto_start"`     // start right after registration
	Log           logger.Config     `json:"log" mapstructure:"log"`
}

// Validate checks the spec at registration time. Probe misconfiguration is a
// registration error, never a runtime surprise.
func (s *Spec) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("container spec requires a name")
	}
	if strings.ContainsAny(name, " \t\n\r/\\<>:\"|?*") {
		return fmt.Errorf("container %q: name contains invalid characters", name)
	}
	if strings.TrimSpace(s.Image) == "" {
		return fmt.Errorf("container %q: image reference is required", name)
	}
	if err := s.RestartPolicy.Validate(); err != nil {
		return fmt.Errorf("container %q: %w", name, err)
	}
	if s.StopTimeout < 0 {
		return fmt.Errorf("container %q: stop_timeout cannot be negative", name)
	}
	for i, kv := range s.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("container %q: env[%d] %q must be KEY=VALUE", name, i, kv)
		}
	}
	if s.Probe != nil {
		if err := s.Probe.Validate(); err != nil {
			return fmt.Errorf("container %q: %w", name, err)
		}
	}
	return nil
}

// EffectiveStopTimeout returns the stop grace period with the default applied.
func (s *Spec) EffectiveStopTimeout() time.Duration {
	if s.StopTimeout > 0 {
		return s.StopTimeout
	}
	return 10 * time.Second
}
