// Package export writes finalized report products as a CSV table, PNG
// echograms and an HTML overview chart. Every file is written atomically.
package export

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/acoustic.report/internal/fsutil"
	"github.com/banshee-data/acoustic.report/internal/monitoring"
	"github.com/banshee-data/acoustic.report/internal/report"
)

// Targets names the files to produce. Empty paths are skipped.
type Targets struct {
	CSV  string
	PNG  string
	HTML string
}

// Empty reports whether no export is requested.
func (t Targets) Empty() bool { return t.CSV == "" && t.PNG == "" && t.HTML == "" }

// Write produces every requested export of p and returns the written paths.
func Write(fsys fsutil.FileSystem, t Targets, p *report.Product, logf monitoring.Logf) ([]string, error) {
	logf = monitoring.Prefixed(logf, "export")
	var written []string
	if t.CSV != "" {
		if err := WriteCSV(fsys, t.CSV, p); err != nil {
			return written, fmt.Errorf("csv: %w", err)
		}
		written = append(written, t.CSV)
	}
	if t.PNG != "" {
		paths, err := WritePNG(fsys, t.PNG, p)
		written = append(written, paths...)
		if err != nil {
			return written, fmt.Errorf("png: %w", err)
		}
	}
	if t.HTML != "" {
		if err := WriteHTML(fsys, t.HTML, p); err != nil {
			return written, fmt.Errorf("html: %w", err)
		}
		written = append(written, t.HTML)
	}
	for _, path := range written {
		logf("wrote %s", path)
	}
	return written, nil
}

// formatValue renders NaN as an empty field.
func formatValue(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
