package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/acoustic.report/internal/fsutil"
	"github.com/banshee-data/acoustic.report/internal/report"
)

// DepthIntegrated sums category index c of bin i over the depth channels,
// weighting each channel by its thickness. It is NaN when every channel
// of the bin is.
func DepthIntegrated(p *report.Product, c, i int) float64 {
	sum, seen := 0.0, false
	for j := range p.DepthUpper {
		v := p.Value(c, i, j)
		if math.IsNaN(v) {
			continue
		}
		sum += v * (p.DepthLower[j] - p.DepthUpper[j])
		seen = true
	}
	if !seen {
		return math.NaN()
	}
	return sum
}

// WriteHTML renders a line chart of the depth-integrated value of every
// category along the ping axis.
func WriteHTML(fsys fsutil.FileSystem, path string, p *report.Product) error {
	line := overviewChart(p)
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error {
		return line.Render(w)
	})
}

func overviewChart(p *report.Product) *charts.Line {
	a := p.Attributes
	x := make([]string, len(p.Times))
	for i, t := range p.Times {
		x[i] = t.UTC().Format(time.RFC3339)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Acoustic report", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Depth-integrated backscatter",
			Subtitle: fmt.Sprintf("%s %s @ %g Hz, %s step %g %s", a.Platform, a.ChannelID, a.Frequency, a.PingAxisIntervalType, a.PingAxisInterval, a.PingAxisIntervalUnit),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (UTC)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "sa (m2 m-2)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for c, cat := range p.Categories {
		data := make([]opts.LineData, len(p.Times))
		for i := range p.Times {
			if v := DepthIntegrated(p, c, i); !math.IsNaN(v) {
				data[i] = opts.LineData{Value: v}
			}
		}
		line.AddSeries(strconv.Itoa(cat), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}
	return line
}
