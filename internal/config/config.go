package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/logger"
	"github.com/loykin/cradle/internal/probe"
	"github.com/loykin/cradle/internal/restart"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Runtime    string            `toml:"runtime" mapstructure:"runtime"`         // "docker" (default) or "fake"
	DockerHost string            `toml:"docker_host" mapstructure:"docker_host"` // optional DOCKER_HOST override
	Store      string            `toml:"store" mapstructure:"store"`             // DSN, see store/factory
	Env        []string          `toml:"env" mapstructure:"env"`
	EnvFiles   []string          `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv   bool              `toml:"use_os_env" mapstructure:"use_os_env"`
	Log        *LogConfig        `toml:"log" mapstructure:"log"`
	Server     ServerConfig      `toml:"server" mapstructure:"server"`
	History    HistoryConfig     `toml:"history" mapstructure:"history"`
	Containers []ContainerConfig `toml:"containers" mapstructure:"containers"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

// HistoryConfig enables the ClickHouse event sink when Addr is set.
type HistoryConfig struct {
	ClickHouseAddr string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	Database       string `toml:"database" mapstructure:"database"`
	Username       string `toml:"username" mapstructure:"username"`
	Password       string `toml:"password" mapstructure:"password"`
	Table          string `toml:"table" mapstructure:"table"`
}

type ContainerConfig struct {
	Name          string            `toml:"name" mapstructure:"name"`
	Image         string            `toml:"image" mapstructure:"image"`
	Env           []string          `toml:"env" mapstructure:"env"`
	Ports         []string          `toml:"ports" mapstructure:"ports"`
	Labels        map[string]string `toml:"labels" mapstructure:"labels"`
	RestartPolicy string            `toml:"restart_policy" mapstructure:"restart_policy"` // e.g. "no", "always", "on-failure:3"
	Probe         *ProbeConfig      `toml:"probe" mapstructure:"probe"`
	StopTimeout   time.Duration     `toml:"stop_timeout" mapstructure:"stop_timeout"`
	AutoStart     bool              `toml:"auto_start" mapstructure:"auto_start"`
	Log           *LogConfig        `toml:"log" mapstructure:"log"`
}

type ProbeConfig struct {
	Type        string        `toml:"type" mapstructure:"type"`
	Target      string        `toml:"target" mapstructure:"target"`
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
	Retries     int           `toml:"retries" mapstructure:"retries"`
	StartPeriod time.Duration `toml:"start_period" mapstructure:"start_period"`
	WindowSize  int           `toml:"window_size" mapstructure:"window_size"`
}

// Load reads and unmarshals the TOML file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if fc.Runtime == "" {
		fc.Runtime = "docker"
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = "127.0.0.1:8080"
	}
	return &fc, nil
}

// Specs converts the container sections into validated specs, applying the
// global env (use_os_env base, env_files, then top-level env overrides) and
// the top-level log defaults to every container.
func (fc *FileConfig) Specs() ([]container.Spec, error) {
	globalEnv, err := fc.globalEnv()
	if err != nil {
		return nil, err
	}
	specs := make([]container.Spec, 0, len(fc.Containers))
	for _, cc := range fc.Containers {
		pol, err := restart.Parse(cc.RestartPolicy)
		if err != nil {
			return nil, fmt.Errorf("container %s: %w", cc.Name, err)
		}
		s := container.Spec{
			Name:          cc.Name,
			Image:         cc.Image,
			Env:           mergeEnv(globalEnv, cc.Env),
			Ports:         cc.Ports,
			Labels:        cc.Labels,
			RestartPolicy: pol,
			StopTimeout:   cc.StopTimeout,
			AutoStart:     cc.AutoStart,
			Log:           fc.logFor(cc.Log),
		}
		if cc.Probe != nil {
			s.Probe = &probe.Config{
				Type:        cc.Probe.Type,
				Target:      cc.Probe.Target,
				Interval:    cc.Probe.Interval,
				Timeout:     cc.Probe.Timeout,
				Retries:     cc.Probe.Retries,
				StartPeriod: cc.Probe.StartPeriod,
				WindowSize:  cc.Probe.WindowSize,
			}
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// logFor starts from the top-level log defaults and overrides with the
// per-container section.
func (fc *FileConfig) logFor(cl *LogConfig) logger.Config {
	var out logger.Config
	if fc.Log != nil {
		out = logger.Config{
			Dir:        fc.Log.Dir,
			StdoutPath: fc.Log.Stdout,
			StderrPath: fc.Log.Stderr,
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
			Compress:   fc.Log.Compress,
		}
	}
	if cl == nil {
		return out
	}
	if cl.Dir != "" {
		out.Dir = cl.Dir
	}
	if cl.Stdout != "" {
		out.StdoutPath = cl.Stdout
	}
	if cl.Stderr != "" {
		out.StderrPath = cl.Stderr
	}
	if cl.MaxSizeMB != 0 {
		out.MaxSizeMB = cl.MaxSizeMB
	}
	if cl.MaxBackups != 0 {
		out.MaxBackups = cl.MaxBackups
	}
	if cl.MaxAgeDays != 0 {
		out.MaxAgeDays = cl.MaxAgeDays
	}
	if cl.Compress {
		out.Compress = true
	}
	return out
}

// globalEnv merges env sources. Precedence: OS env (when enabled) provides
// the base; env_files apply next; the top-level env list overrides last.
func (fc *FileConfig) globalEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// mergeEnv overlays container-level entries on the global set.
func mergeEnv(global, local []string) []string {
	if len(global) == 0 {
		return local
	}
	m := make(map[string]string, len(global)+len(local))
	order := make([]string, 0, len(global)+len(local))
	put := func(kv string) {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			return
		}
		k := kv[:i]
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = kv[i+1:]
	}
	for _, kv := range global {
		put(kv)
	}
	for _, kv := range local {
		put(kv)
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
