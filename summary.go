package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/utilitywarehouse/git-mirrorer/mirror"
)

func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// printSummary writes result counts and failure details of the run
func printSummary(w io.Writer, r *mirror.Report) {
	title := "git-mirrorer run summary"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "%s: %s\n\n", title, r.DestRoot)

	table := newTable([]string{"Result", "Count"}, w)
	for _, row := range [][]string{
		{"cloned", strconv.Itoa(len(r.Cloned))},
		{"updated", strconv.Itoa(len(r.Updated))},
		{"deleted", strconv.Itoa(len(r.Deleted))},
		{"failed", strconv.Itoa(r.Failed())},
		{"conflicts", strconv.Itoa(r.Conflicts())},
		{"anomalies", strconv.Itoa(len(r.Anomalies))},
		{"skipped", strconv.Itoa(len(r.Skipped))},
		{"protected", strconv.Itoa(len(r.Protected))},
	} {
		_ = table.Append(row)
	}
	_ = table.Render()

	if r.Failed() > 0 {
		fmt.Fprintln(w)
		table = newTable([]string{"Mirror", "Action", "Remote", "Error"}, w)
		for _, f := range r.Failures {
			_ = table.Append([]string{f.ID, string(f.Action), f.URL, fmt.Sprint(f.Err)})
		}
		_ = table.Render()
	}

	if len(r.Anomalies) > 0 {
		fmt.Fprintln(w)
		table = newTable([]string{"Mirror", "Path", "Anomaly"}, w)
		for _, a := range r.Anomalies {
			_ = table.Append([]string{a.ID, a.Path, fmt.Sprint(a.Err)})
		}
		_ = table.Render()
	}

	if r.Interrupted {
		fmt.Fprintln(w, "\nrun was interrupted, remaining actions were skipped")
	}
	fmt.Fprintf(w, "\ncompleted in %s\n", r.Duration.Round(time.Millisecond))
}
