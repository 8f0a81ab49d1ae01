package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"issue-scout/internal/scans"
)

func statusColor(p scans.Progress) *color.Color {
	switch {
	case p.Status == scans.StatusCompleted:
		return color.New(color.FgGreen)
	case p.Phase == scans.StageCancelled:
		return color.New(color.FgYellow)
	case p.Status == scans.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

func renderProgress(w io.Writer, fullName string, p scans.Progress) {
	statusColor(p).Fprintf(w, "%s  %s (%s) %d%%\n", fullName, p.Status, p.Phase, p.Percentage)
	fmt.Fprintf(w, "scan %s, %s signal(s) found\n", p.ScanJobID, humanize.Comma(int64(p.SignalsFound)))
	if p.LastError != "" {
		color.New(color.FgRed).Fprintf(w, "last error: %s\n", p.LastError)
	}
	if len(p.Events) == 0 {
		return
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"Time", "Phase", "%", "Files", "Message"})
	for _, e := range p.Events {
		files := ""
		if e.TotalFiles > 0 {
			files = fmt.Sprintf("%d/%d", e.FilesProcessed, e.TotalFiles)
		}
		tbl.AppendRow(table.Row{e.Timestamp.Format("15:04:05"), e.Phase, e.Percentage, files, e.Message})
	}
	tbl.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d events", len(p.Events))})
	tbl.Render()
}
