package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dimiro1/banner"

	"voicequery/internal/bootstrap"
)

const bannerTemplate = "{{ .Title \"voicequery\" \"\" 0 }}\n"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logPath := flag.String("log", "", "write logs to this file instead of discarding them")
	quiet := flag.Bool("no-banner", false, "skip the startup banner")
	flag.Parse()

	var logOutput io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOutput = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := newBridge()
	defer events.close()

	services, err := bootstrap.Build(ctx, bootstrap.Shell{
		Events:      events,
		Navigator:   events,
		Synthesizer: events,
		LogOutput:   logOutput,
	})
	if err != nil {
		return err
	}
	defer func() {
		services.Pipeline.Cancel()
		_ = services.Pipeline.StopListening()
	}()

	if !*quiet {
		banner.Init(os.Stdout, true, true, bytes.NewBufferString(bannerTemplate))
	}

	m := newModel(ctx, services.Pipeline, services.Fetcher, events, services.Config.Dispatch.ViewerRoute, services.Logger)
	program := tea.NewProgram(m, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
