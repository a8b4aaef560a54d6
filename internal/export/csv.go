package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/acoustic.report/internal/fsutil"
	"github.com/banshee-data/acoustic.report/internal/report"
)

var rowColumns = []string{
	"Time", "Latitude", "Longitude", "Origin",
	"Latitude2", "Longitude2", "Origin2",
	"Distance", "BottomDepth", "Validity",
	"ChannelDepthUpper", "ChannelDepthLower",
	"SaCategory", "Value",
}

// CSVHeader returns the column names of WriteCSV: the report attributes
// followed by the row fields.
func CSVHeader(p *report.Product) []string {
	pairs := p.Attributes.Pairs()
	header := make([]string, 0, len(pairs)+len(rowColumns))
	for _, kv := range pairs {
		header = append(header, kv[0])
	}
	return append(header, rowColumns...)
}

// WriteCSV writes p in long format, one line per category, bin and
// channel. The attributes repeat on every line so each line stands alone.
func WriteCSV(fsys fsutil.FileSystem, path string, p *report.Product) error {
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error {
		return EncodeCSV(w, p)
	})
}

// EncodeCSV writes the CSV form of p to w.
func EncodeCSV(w io.Writer, p *report.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader(p)); err != nil {
		return err
	}

	pairs := p.Attributes.Pairs()
	attrs := make([]string, len(pairs))
	for i, kv := range pairs {
		attrs[i] = kv[1]
	}

	record := make([]string, 0, len(attrs)+len(rowColumns))
	for _, r := range p.Rows() {
		record = append(record[:0], attrs...)
		record = append(record,
			r.Time.UTC().Format(time.RFC3339Nano),
			formatValue(r.Latitude),
			formatValue(r.Longitude),
			r.Origin,
			formatValue(r.Latitude2),
			formatValue(r.Longitude2),
			r.Origin2,
			formatValue(r.Distance),
			formatValue(r.BottomDepth),
			r.Validity,
			formatValue(r.ChannelDepthUpper),
			formatValue(r.ChannelDepthLower),
			strconv.Itoa(r.SaCategory),
			formatValue(r.Value),
		)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
