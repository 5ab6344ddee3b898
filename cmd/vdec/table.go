package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/zsiec/vdec/internal/pipeline"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderSnapshot lays out one pipeline's counters as a two-column table.
func renderSnapshot(s pipeline.Snapshot) string {
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }
	size := "unknown"
	if s.Width > 0 && s.Height > 0 {
		size = strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
	}
	rows := [][]string{
		{"Codec", s.Codec},
		{"Size", size},
		{"Family", s.Family},
		{"Units", itoa(s.Units)},
		{"Submitted", itoa(s.Submitted)},
		{"Decoded", itoa(s.Decoded)},
		{"Delivered", itoa(s.Delivered)},
		{"Suppressed", itoa(s.Suppressed)},
		{"Dropped", itoa(s.Dropped)},
		{"Discontinuities", itoa(s.Discontinuities)},
		{"Flushes", itoa(s.Flushes)},
		{"Fallbacks", itoa(s.Fallbacks)},
		{"Reinits", itoa(s.Reinits)},
		{"Replays", itoa(s.Replays)},
	}
	return renderTable([]string{"Stream " + s.Key, "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// renderSessions lays out one row per live session.
func renderSessions(snaps []pipeline.Snapshot) string {
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, []string{
			s.Key,
			s.Codec,
			s.Family,
			strconv.FormatInt(s.Delivered, 10),
			strconv.FormatInt(s.Suppressed, 10),
			strconv.FormatInt(s.Fallbacks, 10),
			strconv.FormatInt(s.UptimeMs/1000, 10) + "s",
		})
	}
	return renderTable(
		[]string{"Stream", "Codec", "Family", "Delivered", "Suppressed", "Fallbacks", "Uptime"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}
