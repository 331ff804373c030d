// Package main is the entry point for dashfleetctl, the operator CLI for a
// running dashfleet hub: start/stop/restart supervised applications, list
// what the supervisor is tracking, and inspect agent state over the hub's
// JSON API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/control"
	"github.com/dashfleet-io/dashfleet/internal/hub"
	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type globalFlags struct {
	supervisorSocket string
	apiAddr          string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	defaults := hub.DefaultConfig()

	root := &cobra.Command{
		Use:   "dashfleetctl",
		Short: "dashfleetctl — operator CLI for a running dashfleet hub",
	}

	root.PersistentFlags().StringVar(&flags.supervisorSocket, "supervisor-socket", envOrDefault("DASHFLEET_SUPERVISOR_SOCKET", defaults.SupervisorSocketPath), "Unix domain socket the hub's process supervisor listens on")
	root.PersistentFlags().StringVar(&flags.apiAddr, "api-addr", envOrDefault("DASHFLEET_API_ADDR", defaults.APIAddr), "Hub JSON API address")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newHubCmd())
	root.AddCommand(newAppCmd(flags))
	root.AddCommand(newAgentCmd(flags))

	return root
}

func newHubCmd() *cobra.Command {
	hubCmd := &cobra.Command{
		Use:   "hub",
		Short: "Run or stop the hub process in the foreground",
	}

	hubCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the hub in the foreground until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := hub.LoadFromEnv()
			logger, err := buildLogger(envOrDefault("DASHFLEET_LOG_LEVEL", "info"))
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			h, err := hub.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to assemble hub: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return h.Run(ctx)
		},
	})

	hubCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Signal a running hub process to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := hub.DefaultConfig()
			data, err := os.ReadFile(cfg.PIDFilePath)
			if err != nil {
				return fmt.Errorf("reading pid file %s: %w", cfg.PIDFilePath, err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("parsing pid file %s: %w", cfg.PIDFilePath, err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("finding hub process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signaling hub process %d: %w", pid, err)
			}
			fmt.Printf("sent SIGTERM to hub process %d\n", pid)
			return nil
		},
	})

	return hubCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dashfleetctl %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newAppCmd(flags *globalFlags) *cobra.Command {
	var appPath string
	var argv []string

	appCmd := &cobra.Command{
		Use:   "app",
		Short: "Manage applications supervised by the hub",
	}

	startCmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a supervised application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPath == "" {
				return fmt.Errorf("--app-path is required")
			}
			c := control.New(flags.supervisorSocket)
			return printReply(c.Start(args[0], appPath, argv))
		},
	}
	startCmd.Flags().StringVar(&appPath, "app-path", "", "Path to the application executable")
	startCmd.Flags().StringSliceVar(&argv, "arg", nil, "Argument to pass to the application (repeatable)")
	appCmd.AddCommand(startCmd)

	appCmd.AddCommand(&cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a supervised application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := control.New(flags.supervisorSocket)
			return printReply(c.Stop(args[0]))
		},
	})

	appCmd.AddCommand(&cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a supervised application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := control.New(flags.supervisorSocket)
			return printReply(c.Restart(args[0]))
		},
	})

	appCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every application the supervisor is tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := control.New(flags.supervisorSocket)
			return printReply(c.List())
		},
	})

	appCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Stop (if running) and forget a supervised application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := control.New(flags.supervisorSocket)
			return printReply(c.Delete(args[0]))
		},
	})

	return appCmd
}

func newAgentCmd(flags *globalFlags) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect agent state as seen by the hub",
	}

	agentCmd.AddCommand(&cobra.Command{
		Use:   "show <master|workers> <agent-id>",
		Short: "Show the master or worker snapshot for one agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, agentID := args[0], args[1]
			if section != "master" && section != "workers" {
				return fmt.Errorf("section must be %q or %q", "master", "workers")
			}
			return showAgentSection(flags.apiAddr, agentID, section)
		},
	})

	return agentCmd
}

func showAgentSection(apiAddr, agentID, section string) error {
	url := "http://" + apiAddr + "/state"
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("fetching hub state: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading hub state response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var state map[string]any
	if err := json.Unmarshal(body, &state); err != nil {
		return fmt.Errorf("decoding hub state: %w", err)
	}

	servers, ok := state["servers"].(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected hub state shape: no \"servers\" object")
	}
	snap, ok := servers[agentID].(map[string]any)
	if !ok {
		return fmt.Errorf("no snapshot for agent %q", agentID)
	}

	out, err := json.MarshalIndent(snap[section], "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printReply(reply protocol.SupervisorReply) error {
	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if reply.Status != "ok" {
		return fmt.Errorf("%s", reply.Message)
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if level == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
