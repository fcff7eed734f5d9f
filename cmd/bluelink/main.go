// Command bluelink is a line-oriented client for the device controller.
// It reads commands from standard input and prints controller events.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bluetuith-org/bluelink/api/bluetooth"
	"github.com/bluetuith-org/bluelink/api/config"
	"github.com/bluetuith-org/bluelink/api/logging"
	"github.com/bluetuith-org/bluelink/controller"
	"github.com/bluetuith-org/bluelink/platform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bluelink:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		adapter    string
		logLevel   string
		jsonOutput bool
	)

	pflag.StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	pflag.StringVarP(&adapter, "adapter", "a", "", "Bluetooth adapter to use, for example hci0")
	pflag.StringVarP(&logLevel, "log-level", "l", "", "Log level (trace, debug, info, warn, error)")
	pflag.BoolVarP(&jsonOutput, "json", "j", false, "Print events as JSON")
	pflag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	if pflag.CommandLine.Changed("adapter") {
		cfg.Adapter = adapter
	}
	if pflag.CommandLine.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	stack, info := platform.Stack(log)
	log.WithField("os", info.OS).WithField("stack", info.Stack).Info("Starting Bluetooth stack")

	if err := stack.Start(cfg); err != nil {
		return err
	}
	defer func() {
		if err := stack.Stop(); err != nil {
			log.WithError(err).Debug("Cannot stop Bluetooth stack")
		}
	}()

	ctrl, err := controller.New(stack, cfg, controller.WithLogger(log))
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	sub := ctrl.Subscribe(bluetooth.AllEvents...)
	g, ctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		err := ctrl.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return nil

			case ev, ok := <-sub.C:
				if !ok {
					return nil
				}

				fmt.Fprintln(os.Stdout, formatEvent(ev, jsonOutput))
			}
		}
	})

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	g.Go(func() error {
		// The loop stops only after the controller released its session.
		defer stopLoop()

		dispatch(sigCtx, ctx, ctrl, lines, os.Stdout, os.Stderr, jsonOutput)

		return nil
	})

	return g.Wait()
}

// dispatch executes commands until quit, the end of input or a signal, and then
// shuts the controller down. If the controller loop stops first, it returns
// without a shutdown.
func dispatch(sigCtx, loopCtx context.Context, ctrl sessionController, lines <-chan string, out, errOut io.Writer, jsonOutput bool) {
	for {
		select {
		case <-loopCtx.Done():
			return

		case <-sigCtx.Done():
			shutdown(ctrl)
			return

		case line, ok := <-lines:
			if !ok {
				shutdown(ctrl)
				return
			}

			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(errOut, err)
				continue
			}

			if cmd.name == "quit" {
				shutdown(ctrl)
				return
			}

			if err := execute(ctrl, cmd, out, jsonOutput); err != nil {
				fmt.Fprintln(errOut, err)
			}
		}
	}
}

// readLines sends every non-empty line of r to lines, and closes lines at EOF.
func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines <- line
		}
	}
}

// shutdown closes the controller and waits briefly for the session to be released.
func shutdown(ctrl sessionController) {
	ctrl.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.ConnectionState() == controller.StateDisconnected &&
			ctrl.DiscoveryState() == controller.DiscoveryIdle {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}
}
