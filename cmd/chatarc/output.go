package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// termWidth is the width of f, or 0 when it is not a terminal.
func termWidth(f *os.File) int {
	if !isTerminal(f) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// printRows renders a table on terminals and TSV for pipes.
func printRows(f *os.File, headers []string, rows [][]string) {
	if !isTerminal(f) {
		for _, row := range rows {
			fmt.Fprintln(f, strings.Join(tsvFields(row), "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	if w := termWidth(f); w > 0 {
		t = t.Width(w)
	}
	fmt.Fprintln(f, t.Render())
}

func tsvFields(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		s = strings.ReplaceAll(s, "\t", " ")
		out[i] = strings.ReplaceAll(s, "\n", " ")
	}
	return out
}
