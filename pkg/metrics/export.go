package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Export writes the current samples of every registered collector to
// path in the text exposition format. A one-shot run has no scrape
// window, so final samples are flushed at run end for a node-exporter
// textfile collector (or anything else reading the format) to pick up.
// The write goes through a temp file and rename, so a collector never
// sees a half-written file.
func Export(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}

	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
