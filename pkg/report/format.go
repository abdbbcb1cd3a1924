package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
)

// Format selects how summaries are written.
type Format string

const (
	FormatTable Format = "table"
	FormatBench Format = "bench"
)

// ParseFormat accepts "table" or "bench".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatBench:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want table or bench)", s)
	}
}

// Write renders summaries in the given format.
func Write(w io.Writer, f Format, summaries []Summary) error {
	switch f {
	case FormatBench:
		return WriteBench(w, summaries)
	case FormatTable:
		WriteTable(w, summaries)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// WriteTable renders summaries as an aligned table.
func WriteTable(w io.Writer, summaries []Summary) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"group", "backend", "iters", "median", "mean", "stddev", "p90", "p99", "ns/iter"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, s := range summaries {
		table.Append([]string{
			s.Group,
			s.Backend,
			humanize.Comma(int64(s.Iterations)),
			duration(s.Median),
			duration(s.Mean),
			duration(s.StdDev),
			duration(s.P90),
			duration(s.P99),
			humanize.Comma(s.Median.Nanoseconds()),
		})
	}
	table.Render()
	fmt.Fprintf(w, "(%d series)\n", len(summaries))
}

func duration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// WriteMetrics writes the run's Prometheus metrics to path in the text
// exposition format, for the node exporter textfile collector.
func (r *Recorder) WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
