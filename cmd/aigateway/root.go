package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-aigateway/internal/llm"
	"github.com/ahrav/go-aigateway/internal/llm/configuration"
)

// app holds state shared by every subcommand for one invocation.
type app struct {
	configPath string
	service    *llm.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "aigateway",
		Short: "Send requests through the AI gateway",
		Long: `aigateway sends prompts to an OpenAI-compatible chat-completion API
through the gateway pipeline: token-bucket throttling, a bounded request
queue, response caching and retry with backoff.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file")

	root.AddCommand(
		newChatCmd(a),
		newStructuredCmd(a),
		newStreamCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := configuration.Load(a.configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Observability)
	slog.SetDefault(logger)

	svc, err := llm.NewService(cfg, llm.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	a.service = svc
	return nil
}

func (a *app) teardown() error {
	if a.service == nil {
		return nil
	}
	return a.service.Close()
}

// newLogger builds the process logger from the observability settings.
func newLogger(w io.Writer, cfg configuration.ObservabilityConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
