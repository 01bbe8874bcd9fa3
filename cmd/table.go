package cmd

import "github.com/pterm/pterm"

// PrintTableNoPad renders data as a table with a single space between
// columns.
func PrintTableNoPad(data pterm.TableData, hasHeader bool) {
	table := pterm.DefaultTable.WithData(data).WithSeparator(" ")
	if hasHeader {
		table = table.WithHasHeader()
	}
	_ = table.Render()
}
