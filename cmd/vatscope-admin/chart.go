package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/unklstewy/vatscope/internal/admin"
)

var blocks = []rune(" ▁▂▃▄▅▆▇█")

// bucketSamples reduces samples to at most width columns, keeping the peak
// of each column.
func bucketSamples(samples []admin.Sample, width int) []int {
	if width <= 0 || len(samples) == 0 {
		return nil
	}
	if len(samples) <= width {
		out := make([]int, len(samples))
		for i, s := range samples {
			out[i] = s.Visitors
		}
		return out
	}
	out := make([]int, width)
	for i, s := range samples {
		col := i * width / len(samples)
		out[col] = max(out[col], s.Visitors)
	}
	return out
}

// renderHistory draws a bar chart of visitor samples, height rows tall,
// using tview color tags. The time axis spans the first to the last sample.
func renderHistory(samples []admin.Sample, width, height int) string {
	cols := bucketSamples(samples, width)
	if len(cols) == 0 {
		return "[gray]No samples yet[-]"
	}
	if height < 1 {
		height = 1
	}

	peak := 1
	for _, v := range cols {
		peak = max(peak, v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[gray]peak %d[-]\n", peak)
	// Each row covers 8 block steps; the top row is filled last.
	for row := height - 1; row >= 0; row-- {
		b.WriteString("[green]")
		for _, v := range cols {
			level := v*height*8/peak - row*8
			b.WriteRune(blocks[max(0, min(level, 8))])
		}
		b.WriteString("[-]\n")
	}

	first, last := samples[0].Time.Local(), samples[len(samples)-1].Time.Local()
	left, right := first.Format("Jan 2 15:04"), last.Format("15:04")
	gap := max(1, len(cols)-len(left)-len(right))
	fmt.Fprintf(&b, "[gray]%s%s%s[-]", left, strings.Repeat(" ", gap), right)
	return b.String()
}

// formatAge renders how long ago t was, coarsely.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2 15:04")
	}
}
