// Package ui renders command-line views of the panel state.
package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kimaguri/htflow-panel/internal/server"
)

// Color palette
var (
	colorGreen    = lipgloss.Color("#00FF00")
	colorYellow   = lipgloss.Color("#FFAA00")
	colorBlue     = lipgloss.Color("#5599FF")
	colorGray     = lipgloss.Color("#666666")
	colorWhite    = lipgloss.Color("#FFFFFF")
	colorDimWhite = lipgloss.Color("#AAAAAA")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(colorBlue).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Foreground(colorDimWhite).
			Padding(0, 1)

	targetStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true).
			Padding(0, 1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

// targetMark flags the live-preview target row
const targetMark = "●"

// Servers renders the running servers as a table. The live-preview target
// is marked and highlighted.
func Servers(servers []server.Info, target string, now time.Time) string {
	title := titleStyle.Render("htflow servers")
	if len(servers) == 0 {
		return title + "\n" + emptyStyle.Render("No servers running")
	}

	rows := make([][]string, len(servers))
	targetRow := -1
	for i, s := range servers {
		mark := ""
		if s.ID == target {
			mark = targetMark
			targetRow = i
		}
		folder := s.Folder
		if folder == "" {
			folder = "."
		}
		rows[i] = []string{
			mark,
			s.ID,
			s.Mode,
			strconv.Itoa(s.Port),
			server.LocalURL(s.Port),
			folder,
			s.Origin,
			Uptime(now.Sub(s.StartTime)),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		Headers("", "ID", "MODE", "PORT", "URL", "FOLDER", "ORIGIN", "UPTIME").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == targetRow:
				return targetStyle
			default:
				return cellStyle
			}
		})
	return title + "\n" + t.Render()
}

// Uptime formats a duration compactly: 45s, 12m, 3h05m
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
