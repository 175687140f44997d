package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"drover/internal/errors"
	"drover/internal/ui"
)

// Writer renders a batch of events somewhere.
type Writer interface {
	Write(events []Event) error
}

// timeUnit is the rounding granularity for durations in text reports.
const timeUnit = time.Millisecond

// NewWriter selects a writer by report type: "text", "yaml", or "json".
func NewWriter(kind string, out io.Writer) (Writer, error) {
	switch kind {
	case "", "text":
		return &textWriter{out: out}, nil
	case "yaml":
		return &yamlWriter{out: out}, nil
	case "json":
		return &jsonWriter{out: out}, nil
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown report type '%s'", kind),
			"Use text, yaml, or json.")
	}
}

// textWriter renders one styled line per event.
type textWriter struct {
	out io.Writer
}

func (w *textWriter) Write(events []Event) error {
	for _, e := range events {
		var line string
		switch {
		case e.Type == EventResourceFailed:
			line = ui.ErrorStyle.Render(fmt.Sprintf("✗ %s: resource failed: %s", e.Server, e.Message))
		case e.Failed:
			line = ui.ErrorStyle.Render(fmt.Sprintf("✗ %s: task %s failed in %s: %s",
				e.Server, e.Task, e.End.Sub(e.Start).Round(timeUnit), e.Message))
		default:
			line = ui.SuccessStyle.Render(fmt.Sprintf("✓ %s: task %s finished in %s",
				e.Server, e.Task, e.End.Sub(e.Start).Round(timeUnit)))
		}
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return errors.WrapWithCode(err, errors.ErrReport,
				"Failed to write text report", "")
		}
	}
	return nil
}

// yamlWriter streams events as YAML documents.
type yamlWriter struct {
	out io.Writer
}

func (w *yamlWriter) Write(events []Event) error {
	enc := yaml.NewEncoder(w.out)
	defer enc.Close()
	if err := enc.Encode(events); err != nil {
		return errors.WrapWithCode(err, errors.ErrReport,
			"Failed to encode YAML report", "")
	}
	return nil
}

// jsonWriter streams events as a JSON array per flush.
type jsonWriter struct {
	out io.Writer
}

func (w *jsonWriter) Write(events []Event) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return errors.WrapWithCode(err, errors.ErrReport,
			"Failed to encode JSON report", "")
	}
	return nil
}
