// Package cli implements the vlmrun command tree using Cobra.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	vlmrun "github.com/vlm-run/vlmrun-golang"
	"github.com/vlm-run/vlmrun-golang/internal/config"
)

// app carries the state shared by every command of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// Global flags
	cfgFile  string
	apiKey   string
	baseURL  string
	output   string
	logLevel string
	noColor  bool

	cfg    *config.Config
	logger zerolog.Logger
	sdk    *vlmrun.Client
}

// Execute runs the CLI against the process streams and returns the exit code.
func Execute() int {
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	return a.run(context.Background(), os.Args[1:])
}

func (a *app) run(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if a.sdk != nil {
		a.sdk.Close()
	}
	if err == nil {
		return 0
	}
	a.printError(err)
	return 1
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "vlmrun",
		Short: "VLM Run - vision-language model API CLI",
		Long: `vlmrun is a command-line interface for the VLM Run API.

Use it to run structured extraction over images, documents, audio and video,
manage uploaded files, datasets and fine-tuning jobs, and chat with agents.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ~/.vlmrun/config.yaml)")
	flags.StringVar(&a.apiKey, "api-key", "", "API key (overrides config and VLMRUN_API_KEY)")
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL (overrides config and VLMRUN_BASE_URL)")
	flags.StringVarP(&a.output, "output", "o", "text", "output format: text, json or yaml")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		a.chatCommand(),
		a.configCommand(),
		a.filesCommand(),
		a.modelsCommand(),
		a.predictionsCommand(),
		a.generateCommand(),
		a.datasetsCommand(),
		a.fineTuningCommand(),
		a.hubCommand(),
		a.versionCommand(),
	)
	return root
}

// initialize loads the config file and sets up logging.
func (a *app) initialize(cmd *cobra.Command) error {
	if !lo.Contains([]string{"text", "json", "yaml"}, a.output) {
		return fmt.Errorf("invalid output format %q (use text, json or yaml)", a.output)
	}
	cfg, err := config.Load(a.configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	level := lo.CoalesceOrEmpty(a.logLevel, cfg.Logging.Level)
	a.logger = setupLogger(level, cfg.Logging.Format, a.stderr, a.colorEnabled(a.stderr))
	return nil
}

func (a *app) configPath() string {
	return lo.CoalesceOrEmpty(a.cfgFile, config.DefaultPath())
}

// client builds the SDK client on first use. Commands that never talk to the
// API do not need an API key.
func (a *app) client() (*vlmrun.Client, error) {
	if a.sdk != nil {
		return a.sdk, nil
	}
	params := vlmrun.ConfigParams{
		APIKey:          lo.CoalesceOrEmpty(a.apiKey, a.cfg.APIKey),
		BaseURL:         lo.CoalesceOrEmpty(a.baseURL, a.cfg.BaseURL),
		TimeoutSeconds:  a.cfg.Timeout,
		MaxAttempts:     a.cfg.MaxAttempts,
		Logger:          &a.logger,
		SkipHealthCheck: true,
	}
	sdk, err := vlmrun.NewClientWithParams(params)
	if err != nil {
		return nil, err
	}
	a.sdk = sdk
	return sdk, nil
}

// setupLogger configures the zerolog logger for stderr diagnostics.
func setupLogger(level, format string, w io.Writer, colored bool) zerolog.Logger {
	lvl := zerolog.WarnLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	if format == "json" {
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !colored,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Logger()
}

func (a *app) printError(err error) {
	label := color.New(color.FgRed, color.Bold)
	if !a.colorEnabled(a.stderr) {
		label.DisableColor()
	} else {
		label.EnableColor()
	}
	fmt.Fprintf(a.stderr, "%s %s\n", label.Sprint("Error:"), errorMessage(err))
}

// errorMessage drops the suggestion already folded into SDK errors and
// prints it on its own line instead.
func errorMessage(err error) string {
	var apiErr *vlmrun.Error
	if !errors.As(err, &apiErr) || apiErr.Suggestion == "" {
		return err.Error()
	}
	msg := strings.Replace(err.Error(), " [suggestion: "+apiErr.Suggestion+"]", "", 1)
	return msg + "\n  " + apiErr.Suggestion
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI and SDK version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printer().print(map[string]string{"version": vlmrun.Version}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "vlmrun %s\n", vlmrun.Version)
				return err
			})
		},
	}
}
