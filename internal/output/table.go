package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/c2h5oh/datasize"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

func newTable(buf *bytes.Buffer) *tabwriter.Writer {
	return tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
}

// FormatPools formats a list of pools as a table.
func (f *TableFormatter) FormatPools(pools []PoolInfo) (string, error) {
	if len(pools) == 0 {
		return "No pools found\n", nil
	}

	var buf bytes.Buffer
	w := newTable(&buf)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tID\tSIZE\tUSAGE\tUSED%\tKEEP\tVOLUMES")
	}

	for _, p := range pools {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			p.Name, p.ID, formatBytes(p.Size), formatBytes(p.Usage),
			formatPercent(p.Usage, p.Size), p.RevisionsToKeep, p.Volumes)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatVolumes formats a list of volumes as a table.
func (f *TableFormatter) FormatVolumes(volumes []VolumeInfo) (string, error) {
	if len(volumes) == 0 {
		return "No volumes found\n", nil
	}

	var buf bytes.Buffer
	w := newTable(&buf)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "VID\tNAME\tKIND\tPHASE\tRW\tSIZE\tUSAGE\tREVISIONS\tSOURCE")
	}

	for _, v := range volumes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\t%d\t%s\n",
			v.VID, dash(v.Name), v.Kind, v.Phase, v.RW,
			formatBytes(v.Size), formatBytes(v.Usage), v.Revisions, dash(v.Source))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatRevisions formats the revisions of a volume as a table.
func (f *TableFormatter) FormatRevisions(vid string, revisions []RevisionInfo) (string, error) {
	if len(revisions) == 0 {
		return fmt.Sprintf("No revisions found for %s\n", vid), nil
	}

	var buf bytes.Buffer
	w := newTable(&buf)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "REVISION\tCREATED\tAGE")
	}

	for _, r := range revisions {
		age := "-"
		if !r.Time.IsZero() {
			age = formatAge(now().Sub(r.Time))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Created, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatBytes renders a byte count the way datasize prints it, e.g. "10.0 GB".
func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return datasize.ByteSize(n).HumanReadable()
}

func formatPercent(part, whole int64) string {
	if whole <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(whole))
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
