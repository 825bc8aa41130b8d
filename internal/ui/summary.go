package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is printed after leaving a room.
type CallSummary struct {
	RoomID   string
	SelfID   string
	Mode     string
	Duration time.Duration
	PeakSize int
}

// RenderCallSummary prints the post-call table to stdout.
func RenderCallSummary(summary CallSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle("Call Summary")
	t.AppendRows([]table.Row{
		{"Room", summary.RoomID},
		{"Member ID", summary.SelfID},
		{"Media", summary.Mode},
		{"Duration", summary.Duration.Round(time.Second).String()},
		{"Peak participants", fmt.Sprintf("%d", summary.PeakSize)},
	})
	t.Render()
}
