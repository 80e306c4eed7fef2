package loadgen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// RenderSummary writes s as a table to w.
func RenderSummary(w io.Writer, s Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Requests", s.Requests},
		{"Light OK", s.LightOK},
		{"Full accepted", s.FullAccepted},
		{"Backpressured", s.Backpressured},
		{"Jobs completed", s.Completed},
		{"Jobs failed", s.JobsFailed},
		{"Mismatches", s.Mismatches},
		{"Errors", s.Errors},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
		{"Avg job latency", s.AvgJobLatency.Round(time.Millisecond).String()},
	})
	t.AppendFooter(table.Row{"Verdict", verdict(s)})

	t.Render()
}

func verdict(s Stats) string {
	if s.Mismatches > 0 {
		return "FAIL"
	}
	return "PASS"
}

// SaveInputs writes the generated payloads to path as a JSON array.
func SaveInputs(path string, payloads []Payload) error {
	if len(payloads) == 0 {
		return fmt.Errorf("no inputs to save")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(payloads, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
