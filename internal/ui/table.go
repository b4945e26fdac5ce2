package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SessionTableItem represents one call session row
type SessionTableItem struct {
	Index     int
	Code      string
	Encounter string
	Caller    string
	Callee    string
	Status    string
	Created   string
}

func SessionTableView(items []SessionTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No sessions")
	}

	headers := []string{"#", "Code", "Encounter", "Caller", "Callee", "Status", "Created"}

	var rows [][]string
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index),
			item.Code,
			truncate(item.Encounter, 24),
			truncate(item.Caller, 18),
			truncate(item.Callee, 18),
			item.Status,
			item.Created,
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderSessionTable(items []SessionTableItem) {
	fmt.Println(SessionTableView(items))
}

// RoomInfoView renders the box shown to the caller once a call room exists.
func RoomInfoView(roomID string) string {
	content := fmt.Sprintf("%s Call Room Ready!\n\n%s Room Code:  %s\n\nShare this code with the other party.",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(roomID string) {
	fmt.Println(RoomInfoView(roomID))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
