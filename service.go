package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"toolbox_backend/shutdown"
)

// serviceStopTimeout bounds how long Stop waits for the server to drain.
const serviceStopTimeout = 45 * time.Second

// program adapts serve to the service lifecycle.
type program struct {
	mu      sync.Mutex
	manager *shutdown.Manager
	exit    chan struct{}
	err     error
	logger  service.Logger
}

// Start launches the server in a goroutine; the service manager expects
// Start to return promptly.
func (p *program) Start(s service.Service) error {
	p.exit = make(chan struct{})
	go p.run(s)
	return nil
}

func (p *program) run(s service.Service) {
	defer close(p.exit)
	p.err = serve(func(m *shutdown.Manager) {
		p.mu.Lock()
		p.manager = m
		p.mu.Unlock()
	})
	if p.err != nil {
		if p.logger != nil {
			p.logger.Error(p.err)
		}
		if p.stopping() {
			return
		}
		// The server stopped on its own. In a terminal s.Run would wait for
		// a signal that never matters now.
		if service.Interactive() {
			color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error: ")
			fmt.Fprintln(os.Stderr, p.err)
			os.Exit(exitCodeFor(p.err))
		}
		s.Stop()
	}
}

// Stop cancels the server and waits for its shutdown handlers.
func (p *program) Stop(s service.Service) error {
	p.mu.Lock()
	m := p.manager
	p.mu.Unlock()
	if m != nil {
		m.Cancel()
	}

	select {
	case <-p.exit:
		return nil
	case <-time.After(serviceStopTimeout):
		return errors.New("timeout waiting for service to stop")
	}
}

func (p *program) stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manager != nil && p.manager.IsShuttingDown()
}

// serviceConfig describes the installed service. The service runs
// "toolbox service run" from the install-time working directory so a
// relative .env and DATABASE_PATH resolve the same way as in a shell.
func serviceConfig() *service.Config {
	args := []string{"service", "run"}
	if envFile != "" {
		if abs, err := filepath.Abs(envFile); err == nil {
			args = append([]string{"--env-file", abs}, args...)
		}
	}
	wd, _ := os.Getwd()
	return &service.Config{
		Name:             "toolbox",
		DisplayName:      "Image Toolbox",
		Description:      "Image toolbox HTTP API: variant batches and mirror transforms.",
		Arguments:        args,
		WorkingDirectory: wd,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

func newService() (service.Service, *program, error) {
	prg := &program{}
	s, err := service.New(prg, serviceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Install and control the OS service",
	Long: `Manage toolbox as a system service (systemd, launchd or the Windows
service manager).

"service run" is what the service manager invokes; it can also be run
in a terminal to try the service lifecycle in the foreground.`,
}

// serviceControl builds a subcommand that calls one control action.
func serviceControl(action, short, done string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := newService()
			if err != nil {
				return err
			}
			if err := service.Control(s, action); err != nil {
				return fmt.Errorf("failed to %s service: %w", action, err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ service %s\n", done)
			return nil
		},
	}
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the service status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := newService()
		if err != nil {
			return err
		}
		status, err := s.Status()
		if err != nil && !errors.Is(err, service.ErrNotInstalled) {
			return fmt.Errorf("failed to get service status: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), describeStatus(status, err))
		return nil
	},
}

var serviceRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run under the service manager",
	Args:   cobra.NoArgs,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, prg, err := newService()
		if err != nil {
			return err
		}
		if prg.logger, err = s.Logger(nil); err != nil {
			return fmt.Errorf("failed to open service logger: %w", err)
		}
		if err := s.Run(); err != nil {
			return fmt.Errorf("service run failed: %w", err)
		}
		return prg.err
	},
}

func init() {
	serviceCmd.AddCommand(
		serviceControl("install", "Install the service", "installed"),
		serviceControl("uninstall", "Remove the service", "uninstalled"),
		serviceControl("start", "Start the service", "started"),
		serviceControl("stop", "Stop the service", "stopped"),
		serviceControl("restart", "Restart the service", "restarted"),
		serviceStatusCmd,
		serviceRunCmd,
	)
}

func describeStatus(status service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "Service is not installed"
	}
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}
