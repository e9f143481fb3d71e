package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/config"
	"github.com/grovetools/devlogs/internal/daemon/pidfile"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/internal/server"
	"github.com/grovetools/devlogs/internal/sweep"
	"github.com/grovetools/devlogs/logging"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest daemon",
		Long:  "Run the devlogs ingest daemon in foreground mode: websocket and TCP producers in, session logs out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd)
		},
	}

	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())
	return cmd
}

func runDaemon(cmd *cobra.Command) error {
	logger := logging.NewLogger("devlogsd")

	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	root, err := cfg.StorageRoot()
	if err != nil {
		return err
	}

	pidPath := filepath.Join(root, "devlogsd.pid")
	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	// The registry root being unavailable is the one fatal condition.
	reg, err := registry.New(root, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, reg, logger)

	var sweepMu sync.Mutex
	sweeper := sweep.New(reg, cfg.StalenessWindow(), cfg.RetentionWindow(), logger)
	runSweep := func() {
		sweepMu.Lock()
		s := sweeper
		sweepMu.Unlock()
		s.Sweep()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup sweep reclaims whatever died while the daemon was down,
	// then the timer keeps policy applied.
	runSweep()
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Retention.SweepIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runSweep()
			}
		}
	}()

	// Watch the config file, if one exists, so retention changes apply
	// without a restart. Listener addresses still need one.
	if cwd, err := os.Getwd(); err == nil {
		if path, err := config.FindConfigFile(cwd); err == nil {
			watcher, err := config.NewWatcher(path, 200*time.Millisecond, logger, func(next *config.Config) {
				sweepMu.Lock()
				sweeper = sweep.New(reg, next.StalenessWindow(), next.RetentionWindow(), logger)
				sweepMu.Unlock()
				logger.WithField("file", path).Info("Configuration reloaded")
			})
			if err != nil {
				logger.WithError(err).Warn("Config watcher unavailable")
			} else {
				go watcher.Start(ctx)
			}
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("Received stop signal")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}

		_ = pidfile.Release(pidPath)
		os.Exit(0)
	}()

	logger.WithField("pid", os.Getpid()).Info("Starting daemon")
	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath, err := daemonPidPath(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Println("Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Printf("Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath, err := daemonPidPath(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if running {
				fmt.Printf("Running (PID: %d)\n", pid)
			} else {
				fmt.Println("Stopped")
				os.Exit(1)
			}
			return nil
		},
	}
}

func daemonPidPath(cmd *cobra.Command) (string, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return "", err
	}
	root, err := cfg.StorageRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "devlogsd.pid"), nil
}
