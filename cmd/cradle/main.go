package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags shared by every remote command
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// RegisterFlags holds flags for the register command
type RegisterFlags struct {
	Name          string
	Image         string
	Env           []string
	Ports         []string
	RestartPolicy string
	StopTimeout   time.Duration
	AutoStart     bool
	ProbeType     string
	ProbeTarget   string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	ProbeRetries  int
	ProbeGrace    time.Duration
	API           APIFlags
}

// buildRoot creates the root command and its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	cradleCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRegisterCommand(cradleCommand),
		createLifecycleCommand(cradleCommand, "start", "Start a container", "start"),
		createLifecycleCommand(cradleCommand, "stop", "Stop a container", "stop"),
		createLifecycleCommand(cradleCommand, "pause", "Pause a running container", "pause"),
		createLifecycleCommand(cradleCommand, "unpause", "Resume a paused container", "unpause"),
		createLifecycleCommand(cradleCommand, "remove", "Remove a stopped container", "remove"),
		createStatusCommand(cradleCommand),
		createProbesCommand(cradleCommand),
		createHistoryCommand(cradleCommand),
		createServeCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "cradle",
		Short: "Single-node container lifecycle tracker",
		Long: `Cradle tracks container lifecycles on one node: registration, a strict
state machine, liveness probes and restart policies. Execution is delegated
to the Docker Engine.

Examples:
  cradle register --name=web --image=nginx:1.27 --restart-policy=on-failure:3
  cradle start --ref=web
  cradle status
  cradle serve --config=config.toml          # Start daemon
  cradle status --api-url=http://remote:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createRegisterCommand(cradleCommand command) *cobra.Command {
	flags := &RegisterFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new container",
		Long: `Register a container with the daemon. The container starts in the
created state; use start (or --auto-start) to run it.

Examples:
  cradle register --name=web --image=nginx:1.27 --ports=8080:80
  cradle register --name=api --image=api:v2 --restart-policy=always --auto-start
  cradle register --name=db --image=postgres:16 \
    --probe-type=tcp --probe-target=127.0.0.1:5432 --probe-grace=30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cradleCommand.Register(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Name, "name", "", "container name (required)")
	cmd.Flags().StringVar(&flags.Image, "image", "", "image reference (required)")
	cmd.Flags().StringSliceVar(&flags.Env, "env", nil, "environment entries KEY=VALUE (repeatable)")
	cmd.Flags().StringSliceVar(&flags.Ports, "ports", nil, "port bindings host:container[/proto] (repeatable)")
	cmd.Flags().StringVar(&flags.RestartPolicy, "restart-policy", "no", "no, always, unless-stopped or on-failure[:max]")
	cmd.Flags().DurationVar(&flags.StopTimeout, "stop-timeout", 0, "grace period before the runtime kills (default 10s)")
	cmd.Flags().BoolVar(&flags.AutoStart, "auto-start", false, "start immediately after registration")
	cmd.Flags().StringVar(&flags.ProbeType, "probe-type", "", "liveness probe type: http, tcp or exec")
	cmd.Flags().StringVar(&flags.ProbeTarget, "probe-target", "", "probe target: URL, host:port or command")
	cmd.Flags().DurationVar(&flags.ProbeInterval, "probe-interval", 0, "probe interval (default 10s)")
	cmd.Flags().DurationVar(&flags.ProbeTimeout, "probe-timeout", 0, "probe timeout (default 5s)")
	cmd.Flags().IntVar(&flags.ProbeRetries, "probe-retries", 0, "consecutive failures before unhealthy (default 3)")
	cmd.Flags().DurationVar(&flags.ProbeGrace, "probe-grace", 0, "start period before failures count")
	addAPIFlags(cmd, &flags.API)

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("image"); err != nil {
		panic(err)
	}
	return cmd
}

// createLifecycleCommand builds one of the ref-keyed transition commands.
func createLifecycleCommand(cradleCommand command, use, short, op string) *cobra.Command {
	api := &APIFlags{}
	var ref string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cradleCommand.Lifecycle(op, ref, *api)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "container id or name (required)")
	addAPIFlags(cmd, api)
	if err := cmd.MarkFlagRequired("ref"); err != nil {
		panic(err)
	}
	return cmd
}

func createStatusCommand(cradleCommand command) *cobra.Command {
	api := &APIFlags{}
	var ref string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show container status",
		Long: `Show the status of tracked containers.

Examples:
  cradle status                 # All containers
  cradle status --ref=web       # One container
  cradle status --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cradleCommand.Status(ref, *api)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "container id or name (optional)")
	addAPIFlags(cmd, api)
	return cmd
}

func createProbesCommand(cradleCommand command) *cobra.Command {
	api := &APIFlags{}
	var ref string
	cmd := &cobra.Command{
		Use:   "probes",
		Short: "Show recent probe results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cradleCommand.Probes(ref, *api)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "container id or name (required)")
	addAPIFlags(cmd, api)
	if err := cmd.MarkFlagRequired("ref"); err != nil {
		panic(err)
	}
	return cmd
}

func createHistoryCommand(cradleCommand command) *cobra.Command {
	api := &APIFlags{}
	var name string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show persisted lifecycle transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cradleCommand.History(name, limit, *api)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "container name (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	addAPIFlags(cmd, api)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the cradle daemon",
		Long: `Start the cradle daemon. Containers, probes, restart policies, the
store and the HTTP listener are all configured from the TOML file.

Examples:
  cradle serve config.toml
  cradle serve --config=config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServeCommand(configPath)
		},
	}
	return cmd
}

func addAPIFlags(cmd *cobra.Command, api *APIFlags) {
	cmd.Flags().StringVar(&api.URL, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&api.Timeout, "api-timeout", 30*time.Second, "request timeout")
}
