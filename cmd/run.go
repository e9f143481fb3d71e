package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/grovetools/devlogs/cli"
	"github.com/grovetools/devlogs/internal/logwriter"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command with its output captured into a session log",
		Long: `Run a command and capture its stdout and stderr into a fresh session log,
redacted, while still streaming to the terminal. The session finalizes when
the command exits.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("run")

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			root, err := cfg.StorageRoot()
			if err != nil {
				return err
			}
			reg, err := registry.New(root, logger)
			if err != nil {
				return err
			}

			if projectDir == "" {
				projectDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			descriptor := strings.Join(args, " ")

			id := registry.GenerateID()
			if err := reg.Register(id, projectDir, descriptor); err != nil {
				logger.WithError(err).Warn("Failed to register session in master index")
			}
			if err := reg.MarkActive(id, projectDir, descriptor); err != nil {
				logger.WithError(err).Warn("Failed to mark session active")
			}
			writer := logwriter.New(reg.ActiveLogPath(id), id, projectDir, descriptor)
			archive := cfg.Retention.Days > 0

			child := exec.Command(args[0], args[1:]...)
			child.Stdin = os.Stdin
			stdout, err := child.StdoutPipe()
			if err != nil {
				return err
			}
			stderr, err := child.StderrPipe()
			if err != nil {
				return err
			}

			if err := child.Start(); err != nil {
				_ = writer.Close()
				_ = reg.MarkCompleted(id, archive)
				return fmt.Errorf("failed to start command: %w", err)
			}

			// Forward interrupts to the child; the session closes when
			// the child actually exits.
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			go func() {
				for sig := range sigs {
					_ = child.Process.Signal(sig)
				}
			}()

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				captureOutput(stdout, os.Stdout, writer, cfg.Ingest.MaxFrameBytes, logger)
			}()
			go func() {
				defer wg.Done()
				captureOutput(stderr, os.Stderr, writer, cfg.Ingest.MaxFrameBytes, logger)
			}()
			wg.Wait()

			runErr := child.Wait()
			signal.Stop(sigs)
			close(sigs)

			if err := writer.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close session log")
			}
			if err := reg.MarkCompleted(id, archive); err != nil {
				logger.WithError(err).Warn("Failed to finalize session")
			}
			logger.WithField("sessionId", id).Info("Session finalized")

			if exitErr, ok := runErr.(*exec.ExitError); ok {
				os.Exit(exitErr.ExitCode())
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&projectDir, "project", "", "Project directory to attribute the session to (default: cwd)")
	return cmd
}

// captureOutput mirrors r to the terminal line by line while logging each
// line as a session event. A line longer than maxLine keeps flowing in
// buffer-sized pieces rather than ending the capture, and a failed session
// writer degrades to mirroring only.
func captureOutput(r io.Reader, mirror io.Writer, writer *logwriter.Writer, maxLine int, logger *logrus.Entry) {
	br := bufio.NewReaderSize(r, maxLine)
	writeFailed := false
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			if _, merr := mirror.Write(chunk); merr != nil {
				logger.WithError(merr).Warn("Failed to mirror output")
			}
			if !writeFailed {
				line := strings.TrimRight(string(chunk), "\r\n")
				if werr := writer.WriteEvent(logwriter.ChannelProcessOutput, line); werr != nil {
					logger.WithError(werr).Warn("Failed to write output line; mirroring only")
					writeFailed = true
				}
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err != io.EOF {
				logger.WithError(err).Warn("Output capture ended early")
			}
			return
		}
	}
}
