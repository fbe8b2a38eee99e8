package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	vlmrun "github.com/vlm-run/vlmrun-golang"
)

// generateFlags are shared by every generate subcommand.
type generateFlags struct {
	domain      string
	model       string
	prompt      string
	schemaFile  string
	options     []string
	batch       bool
	wait        bool
	waitTimeout time.Duration
	callbackURL string
}

func (a *app) generateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a structured prediction over an image, document, audio or video",
		Long: `Run a structured prediction. The input is a URL, a local path or the id of
a previously uploaded file.

Generation options are passed as --option key=value, for example
--option temperature=0.2 --option confidence=true.`,
	}
	for _, category := range []vlmrun.Category{
		vlmrun.CategoryImage, vlmrun.CategoryDocument, vlmrun.CategoryAudio, vlmrun.CategoryVideo,
	} {
		cmd.AddCommand(a.generateCategoryCommand(category))
	}
	return cmd
}

func (a *app) generateCategoryCommand(category vlmrun.Category) *cobra.Command {
	var gf generateFlags
	cmd := &cobra.Command{
		Use:   string(category) + " <input>",
		Short: "Generate a prediction for a " + string(category),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := vlmrun.ParseInput(args[0])
			if err != nil {
				return err
			}
			genCfg, err := gf.generationConfig()
			if err != nil {
				return err
			}
			req := vlmrun.GenerateRequest{
				Input:       input,
				Domain:      gf.domain,
				Model:       gf.model,
				Config:      genCfg,
				Batch:       gf.batch,
				CallbackURL: gf.callbackURL,
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			var pred *vlmrun.PredictionResponse
			if category == vlmrun.CategoryImage {
				pred, err = client.Image().GenerateWithContext(cmd.Context(), req)
			} else {
				pred, err = a.filePredictions(client, category).GenerateWithContext(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			a.logger.Info().Str("prediction_id", pred.ID).Str("status", string(pred.Status)).Msg("prediction created")

			if gf.wait && !pred.Status.IsTerminal() {
				pred, err = client.Predictions().WaitWithContext(cmd.Context(), pred.ID, vlmrun.WaitOptions{Timeout: gf.waitTimeout})
				if err != nil {
					return err
				}
			}
			return a.printPrediction(pred)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&gf.domain, "domain", "d", "", "domain, e.g. document.invoice")
	flags.StringVarP(&gf.model, "model", "m", "", "model, when no domain is given")
	flags.StringVarP(&gf.prompt, "prompt", "p", "", "instruction overriding the domain default")
	flags.StringVar(&gf.schemaFile, "schema", "", "path to a JSON schema for the response")
	flags.StringArrayVar(&gf.options, "option", nil, "generation option key=value (repeatable)")
	flags.BoolVar(&gf.batch, "batch", category != vlmrun.CategoryImage, "queue the prediction instead of waiting for it server-side")
	flags.BoolVarP(&gf.wait, "wait", "w", true, "poll batch predictions until they finish")
	flags.DurationVar(&gf.waitTimeout, "wait-timeout", 10*time.Minute, "how long --wait polls")
	flags.StringVar(&gf.callbackURL, "callback-url", "", "URL notified when a batch prediction finishes")
	return cmd
}

func (a *app) filePredictions(client *vlmrun.Client, category vlmrun.Category) *vlmrun.FilePredictionsAPI {
	switch category {
	case vlmrun.CategoryAudio:
		return client.Audio()
	case vlmrun.CategoryVideo:
		return client.Video()
	default:
		return client.Document()
	}
}

// generationConfig merges --prompt, --schema and --option into one config.
// It returns nil when no option was given.
func (gf *generateFlags) generationConfig() (*vlmrun.GenerationConfig, error) {
	opts, err := parseOptions(gf.options)
	if err != nil {
		return nil, err
	}
	if gf.prompt != "" {
		opts["prompt"] = gf.prompt
	}
	if gf.schemaFile != "" {
		data, err := os.ReadFile(gf.schemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		opts["json_schema"] = string(data)
	}
	if len(opts) == 0 {
		return nil, nil
	}
	cfg, err := vlmrun.ParseGenerationConfig(opts)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseOptions reads key=value pairs, decoding each value as a YAML scalar
// so that numbers and booleans keep their types.
func parseOptions(pairs []string) (map[string]any, error) {
	opts := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		opts[key] = value
	}
	return opts, nil
}
