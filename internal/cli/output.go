package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	vlmrun "github.com/vlm-run/vlmrun-golang"
)

// printer renders command results in the selected output format.
type printer struct {
	w      io.Writer
	format string
	color  bool
}

func (a *app) printer() *printer {
	return &printer{w: a.stdout, format: a.output, color: a.colorEnabled(a.stdout)}
}

// colorEnabled reports whether w is an interactive terminal that accepts colour.
func (a *app) colorEnabled(w io.Writer) bool {
	if a.noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// print writes v as JSON or YAML, or calls text for the human format.
func (p *printer) print(v any, text func(w io.Writer) error) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return writeYAML(p.w, v)
	default:
		return text(p.w)
	}
}

// writeYAML renders v through its JSON form so that json tags and custom
// marshalers apply, keeping the field order of the JSON document.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	resetStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

// resetStyle turns the flow style inherited from JSON into block style.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		resetStyle(child)
	}
}

// table writes aligned columns.
func (p *printer) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	if len(header) > 0 {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// status colours a job status for terminal output.
func (p *printer) status(s vlmrun.JobStatus) string {
	var c *color.Color
	switch s {
	case vlmrun.StatusCompleted:
		c = color.New(color.FgGreen)
	case vlmrun.StatusFailed, vlmrun.StatusCancelled:
		c = color.New(color.FgRed)
	case vlmrun.StatusPending, vlmrun.StatusEnqueued, vlmrun.StatusRunning:
		c = color.New(color.FgYellow)
	default:
		return string(s)
	}
	if p.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(string(s))
}

// prettyJSON indents raw JSON for the text format.
func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func formatTime(ts *vlmrun.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02 15:04:05")
}
