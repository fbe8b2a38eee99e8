package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vlm-run/vlmrun-golang/internal/config"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the CLI configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration with the API key masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			redacted := a.cfg.Redacted()
			p := a.printer()
			if p.format == "json" {
				return p.print(redacted, nil)
			}
			// Text and YAML are the same for a YAML file.
			return writeYAML(p.w, redacted)
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.stdout, a.configPath())
			return err
		},
	}

	set := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Set a configuration value",
		Long: `Set a configuration value. Valid keys: ` + strings.Join(config.Keys(), ", ") + `.

When the value of api_key is omitted it is prompted for without echo.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			var value string
			switch {
			case len(args) == 2:
				value = args[1]
			case key == "api_key":
				secret, err := a.promptSecret("Enter VLM Run API key: ")
				if err != nil {
					return err
				}
				value = secret
			default:
				return fmt.Errorf("a value is required for %s", key)
			}
			if key == "api_key" && strings.TrimSpace(value) == "" {
				return fmt.Errorf("API key cannot be empty")
			}
			if err := a.cfg.Set(key, value); err != nil {
				return err
			}
			if err := config.Save(a.configPath(), a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Set %s in %s\n", key, a.configPath())
			return nil
		},
	}

	unset := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Unset(args[0]); err != nil {
				return err
			}
			if err := config.Save(a.configPath(), a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Unset %s in %s\n", args[0], a.configPath())
			return nil
		},
	}

	cmd.AddCommand(show, path, set, unset)
	return cmd
}

// promptSecret reads a line without echo when stdin is a terminal.
func (a *app) promptSecret(label string) (string, error) {
	fmt.Fprint(a.stderr, label)
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}
	// Piped input
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
