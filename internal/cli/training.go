package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	vlmrun "github.com/vlm-run/vlmrun-golang"
)

func (a *app) datasetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Manage training datasets",
	}

	var req vlmrun.DatasetCreateRequest
	create := &cobra.Command{
		Use:   "create <directory>",
		Short: "Archive a directory, upload it and register a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			req.Directory = args[0]
			ds, err := client.Datasets().CreateWithContext(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printDatasets([]vlmrun.DatasetResponse{*ds})
		},
	}
	create.Flags().StringVarP(&req.Domain, "domain", "d", "", "domain the dataset trains, e.g. document.invoice")
	create.Flags().StringVar(&req.DatasetName, "name", "", "dataset name")
	create.Flags().StringVar(&req.DatasetType, "type", vlmrun.DatasetImages, "dataset type: images, videos or documents")
	_ = create.MarkFlagRequired("domain")
	_ = create.MarkFlagRequired("name")

	get := &cobra.Command{
		Use:   "get <dataset-id>",
		Short: "Show one dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ds, err := client.Datasets().GetWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printDatasets([]vlmrun.DatasetResponse{*ds})
		},
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			all, err := client.Datasets().List(lf.options()).Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.printDatasets(all)
		},
	}
	lf.bind(list)

	cmd.AddCommand(create, get, list)
	return cmd
}

func (a *app) printDatasets(items []vlmrun.DatasetResponse) error {
	p := a.printer()
	return p.print(items, func(io.Writer) error {
		rows := lo.Map(items, func(d vlmrun.DatasetResponse, _ int) []string {
			return []string{d.ID, d.DatasetName, d.DatasetType, d.Domain, p.status(d.Status), formatTime(d.CreatedAt)}
		})
		return p.table([]string{"ID", "NAME", "TYPE", "DOMAIN", "STATUS", "CREATED"}, rows)
	})
}

func (a *app) fineTuningCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fine-tuning",
		Aliases: []string{"ft"},
		Short:   "Manage fine-tuning jobs and fine-tuned models",
	}

	var (
		req       vlmrun.FineTuningCreateRequest
		batchSize string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Start a fine-tuning job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseBatchSize(batchSize)
			if err != nil {
				return err
			}
			req.BatchSize = size
			client, err := a.client()
			if err != nil {
				return err
			}
			job, err := client.FineTuning().CreateWithContext(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printJobs([]vlmrun.FinetuningResponse{*job})
		},
	}
	cf := create.Flags()
	cf.StringVarP(&req.Model, "model", "m", "", "base model")
	cf.StringVar(&req.TrainingFileID, "training-file", "", "id of the uploaded training file")
	cf.StringVar(&req.ValidationFileID, "validation-file", "", "id of the uploaded validation file")
	cf.IntVar(&req.NumEpochs, "epochs", 1, "number of epochs")
	cf.StringVar(&batchSize, "batch-size", "auto", `batch size, an integer or "auto"`)
	cf.Float64Var(&req.LearningRate, "learning-rate", 2e-4, "learning rate")
	cf.StringVar(&req.Suffix, "suffix", "", "suffix of the fine-tuned model name")
	cf.StringVar(&req.WandbProjectName, "wandb-project", "", "Weights & Biases project")
	_ = create.MarkFlagRequired("model")
	_ = create.MarkFlagRequired("training-file")

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List fine-tuning jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			jobs, err := client.FineTuning().List(lf.options()).Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJobs(jobs)
		},
	}
	lf.bind(list)

	get := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one fine-tuning job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			job, err := client.FineTuning().GetWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJobs([]vlmrun.FinetuningResponse{*job})
		},
	}

	var (
		duration    time.Duration
		concurrency int
	)
	provision := &cobra.Command{
		Use:   "provision <model>",
		Short: "Deploy a fine-tuned model for a limited time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			out, err := client.FineTuning().ProvisionWithContext(cmd.Context(), args[0], duration, concurrency)
			if err != nil {
				return err
			}
			p := a.printer()
			return p.print(out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s %s (duration %ds, concurrency %d)\n",
					out.Model, p.status(out.Status), out.Duration, out.Concurrency)
				return err
			})
		},
	}
	provision.Flags().DurationVar(&duration, "duration", 10*time.Minute, "how long the model stays deployed")
	provision.Flags().IntVar(&concurrency, "concurrency", 1, "number of replicas")

	var mf listFlags
	models := &cobra.Command{
		Use:   "models",
		Short: "List fine-tuned models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			names, err := client.FineTuning().ListModels(mf.options()).Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer().print(names, func(w io.Writer) error {
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
				return nil
			})
		},
	}
	mf.bind(models)

	cmd.AddCommand(create, list, get, provision, models)
	return cmd
}

func parseBatchSize(s string) (any, error) {
	if s == "" || s == "auto" {
		return "auto", nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf(`batch size must be an integer or "auto", got %q`, s)
	}
	return n, nil
}

func (a *app) printJobs(jobs []vlmrun.FinetuningResponse) error {
	p := a.printer()
	return p.print(jobs, func(io.Writer) error {
		rows := lo.Map(jobs, func(j vlmrun.FinetuningResponse, _ int) []string {
			return []string{j.ID, j.Model, p.status(j.Status), formatTime(j.CreatedAt)}
		})
		return p.table([]string{"ID", "MODEL", "STATUS", "CREATED"}, rows)
	})
}
