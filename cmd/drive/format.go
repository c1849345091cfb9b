package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"drive-go/internal/drive"
	"drive-go/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// humanSize formats a byte count with binary units.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func printFiles(w io.Writer, files []drive.FileRecord) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tMODIFIED\t")
	for _, f := range files {
		name := f.Name
		if f.Starred {
			name = "* " + name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", f.ID, name, humanSize(f.Size), formatTime(f.UpdatedAt))
	}
	tw.Flush()
}

// progressBar renders pct as a fixed-width bar.
func progressBar(pct int) string {
	const width = 20
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func printUploads(w io.Writer, records []*model.UploadRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No uploads recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range records {
		result := r.FileID
		if r.Status == string(drive.UploadFailed) {
			result = r.Error
		}
		fmt.Fprintf(tw, "%s\t%-9s\t%s\t%s\t%s\t\n",
			formatTime(r.FinishedAt), r.Status, r.Name, humanSize(r.Size), result)
	}
	tw.Flush()
}

func printExports(w io.Writer, records []*model.ExportRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No exports recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			formatTime(r.CreatedAt), r.FileName, r.Sink, r.Location, r.Checksum[:min(12, len(r.Checksum))])
	}
	tw.Flush()
}

func printOperations(w io.Writer, ops []*model.Operation) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations recorded.")
		return
	}
	for _, op := range ops {
		duration := ""
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
		}
		fmt.Fprintf(w, "#%d  %-10s  %s  %-8s  %s  %s\n",
			op.ID, op.Operation, formatTime(op.StartedAt), op.Status, duration, op.Parameters)
	}
}
