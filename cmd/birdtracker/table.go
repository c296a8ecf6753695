package main

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"birdtracker/pkg/birdtracker"
)

// renderSummary prints the frame counters followed by one row per tier.
func renderSummary(stats birdtracker.RunStats, acq *birdtracker.Acquirer, elapsed time.Duration) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})

	tw.AppendRows([]table.Row{
		{"Raw frames", strconv.FormatInt(acq.RawFrames(), 10)},
		{"Rejected reference frames", strconv.FormatInt(acq.RejectedFrames(), 10)},
		{"Stabilized frames", strconv.Itoa(stats.Frames)},
	})
	tw.AppendSeparator()

	total := 0
	for _, tier := range birdtracker.AllTiers {
		n := stats.Records[tier]
		total += n
		tw.AppendRow(table.Row{tier.String() + " records", strconv.Itoa(n)})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Total records", strconv.Itoa(total)})
	tw.AppendRow(table.Row{"Elapsed", elapsed.Round(time.Millisecond).String()})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
