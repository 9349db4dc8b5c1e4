package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by CLI commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := &cobra.Command{
		Use:   "craftd",
		Short: "Minecraft server control-panel daemon",
		Long: `Craftd supervises Minecraft server processes and exposes a web control
panel API: lifecycle control, live console streaming and plugin event relay.

Examples:
  craftd serve --config=craftd.toml        # Start the daemon
  craftd status --server=survival          # Show one server
  craftd start --server=survival           # Start a server
  craftd command --server=survival --cmd="say hello"`,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createVersionCommand(),
		createServeCommand(globalFlags),
		createStatusCommand(apiFlags),
		createStartCommand(apiFlags),
		createStopCommand(apiFlags),
		createRestartCommand(apiFlags),
		createKillCommand(apiFlags),
		createCommandCommand(apiFlags),
		createLogsCommand(apiFlags),
	)
	return root
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.URL, "api-url", "http://127.0.0.1:8080", "daemon URL")
	cmd.Flags().DurationVar(&flags.Timeout, "api-timeout", 10*time.Second, "request timeout")
}

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the craftd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("craftd", version)
		},
	}
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the craftd daemon",
		Long: `Start the craftd daemon: spawn nothing, serve the control API, and
supervise servers started through it. Configuration is loaded from the TOML
file given via --config or as the first argument.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required. Use --config=craftd.toml or provide as argument")
			}
			return runServe(configPath)
		},
	}
}

func createStatusCommand(apiFlags *APIFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long: `Show the status of managed servers.

Examples:
  craftd status                   # All servers
  craftd status --server=survival # One server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Status(name)
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (optional)")
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createStartCommand(apiFlags *APIFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Lifecycle(name, "start")
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (required)")
	addAPIFlags(cmd, apiFlags)
	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}
	return cmd
}

func createStopCommand(apiFlags *APIFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a server gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Lifecycle(name, "stop")
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (required)")
	addAPIFlags(cmd, apiFlags)
	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}
	return cmd
}

func createRestartCommand(apiFlags *APIFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Lifecycle(name, "restart")
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (required)")
	addAPIFlags(cmd, apiFlags)
	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}
	return cmd
}

func createKillCommand(apiFlags *APIFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Force-kill a server process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Lifecycle(name, "kill")
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (required)")
	addAPIFlags(cmd, apiFlags)
	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}
	return cmd
}

func createCommandCommand(apiFlags *APIFlags) *cobra.Command {
	var name, command string
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Send a console command to a running server",
		Long: `Send a console command to a running server's stdin.

Example:
  craftd command --server=survival --cmd="say restarting in 5 minutes"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Command(name, command)
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (required)")
	cmd.Flags().StringVar(&command, "cmd", "", "console command (required)")
	addAPIFlags(cmd, apiFlags)
	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("cmd"); err != nil {
		panic(err)
	}
	return cmd
}

func createLogsCommand(apiFlags *APIFlags) *cobra.Command {
	var name string
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent console lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient(apiFlags).Logs(name, limit)
		},
	}
	cmd.Flags().StringVar(&name, "server", "", "server name (required)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum lines")
	addAPIFlags(cmd, apiFlags)
	if err := cmd.MarkFlagRequired("server"); err != nil {
		panic(err)
	}
	return cmd
}
