package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	vlmrun "github.com/vlm-run/vlmrun-golang"
)

func (a *app) modelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the models served by the API",
	}

	var domainPrefix string
	list := &cobra.Command{
		Use:   "list",
		Short: "List model and domain pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			models, err := client.Models().ListWithContext(cmd.Context())
			if err != nil {
				return err
			}
			if domainPrefix != "" {
				models = lo.Filter(models, func(m vlmrun.ModelInfo, _ int) bool {
					return strings.HasPrefix(m.Domain, domainPrefix)
				})
			}
			p := a.printer()
			return p.print(models, func(io.Writer) error {
				rows := lo.Map(models, func(m vlmrun.ModelInfo, _ int) []string { return []string{m.Model, m.Domain} })
				return p.table([]string{"MODEL", "DOMAIN"}, rows)
			})
		},
	}
	list.Flags().StringVar(&domainPrefix, "domain", "", "only show domains with this prefix, e.g. document.")

	cmd.AddCommand(list)
	return cmd
}

func (a *app) predictionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predictions",
		Short: "Inspect predictions",
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			preds, err := client.Predictions().List(lf.options()).Collect(cmd.Context())
			if err != nil {
				return err
			}
			p := a.printer()
			return p.print(preds, func(io.Writer) error {
				rows := lo.Map(preds, func(pr vlmrun.PredictionResponse, _ int) []string {
					return []string{pr.ID, p.status(pr.Status), lo.CoalesceOrEmpty(pr.Domain, "-"), formatTime(pr.CreatedAt)}
				})
				return p.table([]string{"ID", "STATUS", "DOMAIN", "CREATED"}, rows)
			})
		},
	}
	lf.bind(list)

	get := &cobra.Command{
		Use:   "get <prediction-id>",
		Short: "Show one prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			pred, err := client.Predictions().GetWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printPrediction(pred)
		},
	}

	var wait vlmrun.WaitOptions
	waitCmd := &cobra.Command{
		Use:   "wait <prediction-id>",
		Short: "Poll a prediction until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			pred, err := client.Predictions().WaitWithContext(cmd.Context(), args[0], wait)
			if err != nil {
				return err
			}
			return a.printPrediction(pred)
		},
	}
	waitCmd.Flags().DurationVar(&wait.Timeout, "timeout", 5*time.Minute, "overall wait budget")
	waitCmd.Flags().DurationVar(&wait.Interval, "interval", 0, "delay between polls (default from the SDK)")

	cmd.AddCommand(list, get, waitCmd)
	return cmd
}

func (a *app) printPrediction(pred *vlmrun.PredictionResponse) error {
	p := a.printer()
	return p.print(pred, func(w io.Writer) error {
		fmt.Fprintf(w, "id:      %s\n", pred.ID)
		fmt.Fprintf(w, "status:  %s\n", p.status(pred.Status))
		if pred.Domain != "" {
			fmt.Fprintf(w, "domain:  %s\n", pred.Domain)
		}
		fmt.Fprintf(w, "created: %s\n", formatTime(pred.CreatedAt))
		if pred.Error != nil {
			fmt.Fprintf(w, "error:   %s\n", pred.Error.Message)
		}
		if pred.Usage != nil && pred.Usage.CreditsUsed != nil {
			fmt.Fprintf(w, "credits: %d\n", *pred.Usage.CreditsUsed)
		}
		if len(pred.Response) > 0 {
			fmt.Fprintf(w, "response:\n%s\n", prettyJSON(pred.Response))
		}
		return nil
	})
}
