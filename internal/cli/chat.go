package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	vlmrun "github.com/vlm-run/vlmrun-golang"
)

func (a *app) chatCommand() *cobra.Command {
	var (
		files   []string
		urls    []string
		model   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Ask an agent model a question, optionally about local files",
		Long: `Send a prompt to an agent model and wait for the answer.

Use "-" as the prompt to read it from stdin. Local files given with --file are
uploaded first; --url passes files the API can already reach.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := a.readPrompt(args)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Completions().CreateWithContext(cmd.Context(), vlmrun.CompletionRequest{
				Prompt:   prompt,
				Files:    lo.Map(files, func(p string, _ int) vlmrun.FileUpload { return vlmrun.FileFromPath(p) }),
				FileURLs: urls,
				Model:    model,
				Timeout:  timeout,
				OnUpdate: func(c vlmrun.CompletionChunk) {
					a.logger.Info().Str("execution_id", c.ID).Str("status", string(c.Status)).Msg("execution update")
				},
			})
			if err != nil {
				return err
			}
			p := a.printer()
			return p.print(resp, func(w io.Writer) error {
				text := resp.Text()
				if text == "" {
					text = prettyJSON(resp.Response)
				}
				fmt.Fprintln(w, text)
				if resp.Status != vlmrun.StatusCompleted {
					fmt.Fprintf(w, "\nstatus: %s\n", p.status(resp.Status))
				}
				for _, art := range resp.Artifacts {
					fmt.Fprintf(w, "artifact %s: %s\n", art.ID, art.URL)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "local file to attach (repeatable)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "remote file URL to attach (repeatable)")
	cmd.Flags().StringVarP(&model, "model", "m", vlmrun.DefaultAgentModel, "agent model")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the answer")
	return cmd
}

func (a *app) readPrompt(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(bufio.NewReader(a.stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read prompt: %w", err)
		}
		args = []string{string(data)}
	}
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	return prompt, nil
}
