package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/izukowska/10xcards/internal/llm"
)

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Send a minimal request upstream and report health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			status := a.health.HealthCheck(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Healthy {
				return errors.New("upstream unhealthy")
			}
			return nil
		},
	}
}

type chatFlags struct {
	model       string
	system      string
	temperature float64
	maxTokens   int
	asJSON      bool
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	f := &chatFlags{}

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a single prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			req := &llm.ChatRequest{Model: f.model}
			if f.system != "" {
				req.Messages = append(req.Messages, llm.ChatMessage{Role: llm.RoleSystem, Content: f.system})
			}
			req.Messages = append(req.Messages, llm.ChatMessage{Role: llm.RoleUser, Content: strings.Join(args, " ")})

			params := &llm.ModelParams{}
			if cmd.Flags().Changed("temperature") {
				params.Temperature = llm.Float(f.temperature)
			}
			if cmd.Flags().Changed("max-tokens") {
				params.MaxTokens = llm.Int(f.maxTokens)
			}
			req.Params = params

			resp, err := a.client.Send(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if f.asJSON {
				return printJSON(out, resp)
			}
			fmt.Fprintln(out, resp.Content)
			fmt.Fprintf(cmd.ErrOrStderr(), "model=%s tokens=%d request_id=%s\n",
				resp.Model, resp.Usage.TotalTokens, resp.RequestID)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.model, "model", "", "model id (default from config)")
	cmd.Flags().StringVar(&f.system, "system", "", "optional system message")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0.7, "sampling temperature")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 1000, "completion token limit")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the full response as JSON")

	return cmd
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "generate <file|->",
		Short: "Generate flashcard proposals from a text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.generator.Generate(cmd.Context(), userID, text)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "user id recorded with the request")
	return cmd
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading source text: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
