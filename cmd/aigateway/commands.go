package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-aigateway/internal/llm"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// requestFlags are shared by every request command.
type requestFlags struct {
	system      string
	model       string
	purpose     string
	complexity  string
	temperature float64
	maxTokens   int64
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.system, "system", "s", "", "System message sent before the prompt")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model name; overrides --complexity")
	cmd.Flags().StringVar(&f.purpose, "purpose", "", "Parameter preset: creative, factual, code or medical")
	cmd.Flags().StringVar(&f.complexity, "complexity", "", "Model tier: simple, medium or complex")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "Sampling temperature; overrides the preset")
	cmd.Flags().Int64Var(&f.maxTokens, "max-tokens", 0, "Maximum completion tokens")
}

func (f *requestFlags) options(cmd *cobra.Command) llm.Options {
	opts := llm.Options{
		SystemMessage: f.system,
		Model:         f.model,
		Purpose:       llm.Purpose(f.purpose),
		Complexity:    llm.Complexity(f.complexity),
	}
	if cmd.Flags().Changed("temperature") {
		opts.Parameters.Temperature = transport.Float(f.temperature)
	}
	if f.maxTokens > 0 {
		opts.Parameters.MaxTokens = transport.Int(f.maxTokens)
	}
	return opts
}

// run adapts a prompt handler to cobra, reading the prompt from the
// arguments or stdin, and closes the service when the handler returns.
func (a *app) run(fn func(cmd *cobra.Command, messages []transport.Message) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() { _ = a.teardown() }()

		prompt, err := readPrompt(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return fn(cmd, []transport.Message{{Role: transport.RoleUser, Content: prompt}})
	}
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("a prompt is required as arguments or on stdin")
	}
	return prompt, nil
}

func newChatCmd(a *app) *cobra.Command {
	var flags requestFlags
	var showUsage bool

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt and print the reply",
		RunE: a.run(func(cmd *cobra.Command, messages []transport.Message) error {
			resp, err := a.service.GenerateChat(cmd.Context(), messages, flags.options(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
			if showUsage {
				fmt.Fprintf(cmd.ErrOrStderr(), "model=%s cached=%t prompt_tokens=%d completion_tokens=%d latency=%s\n",
					resp.Model, resp.Cached, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Latency)
			}
			return nil
		}),
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&showUsage, "usage", false, "Print model, cache and token usage to stderr")
	return cmd
}

func newStructuredCmd(a *app) *cobra.Command {
	var flags requestFlags
	var schemaArg string

	cmd := &cobra.Command{
		Use:   "structured [prompt]",
		Short: "Request a JSON reply conforming to a schema",
		Long: `structured asks for a JSON object. --schema takes inline JSON or
@path to read the schema from a file. Replies that are not JSON, or that miss
a property the schema requires, fail.`,
		RunE: a.run(func(cmd *cobra.Command, messages []transport.Message) error {
			schema, err := loadSchema(schemaArg)
			if err != nil {
				return err
			}
			raw, err := a.service.GenerateStructuredResponse(cmd.Context(), messages, schema, flags.options(cmd))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(raw)
		}),
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&schemaArg, "schema", "", "JSON schema, inline or @file")
	return cmd
}

func loadSchema(arg string) (json.RawMessage, error) {
	if arg == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		return json.RawMessage(data), nil
	}
	return json.RawMessage(arg), nil
}

func newStreamCmd(a *app) *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: "Stream a reply as it is generated",
		RunE: a.run(func(cmd *cobra.Command, messages []transport.Message) error {
			out := cmd.OutOrStdout()
			return a.service.StreamChat(cmd.Context(), messages, llm.StreamCallbacks{
				OnMessage:  func(delta string) { fmt.Fprint(out, delta) },
				OnComplete: func(string) { fmt.Fprintln(out) },
			}, flags.options(cmd))
		}),
	}
	flags.register(cmd)
	return cmd
}
