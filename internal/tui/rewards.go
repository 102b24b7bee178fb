package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/dopabank/internal/model"
)

const (
	affordableMark   = "✓"
	unaffordableMark = "✗"
)

func rewardColumns(width int) []table.Column {
	nameWidth := maxInt(10, width-6-8-12-4)
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Reward", Width: nameWidth},
		{Title: "Cost", Width: 8},
		{Title: "Affordable", Width: 12},
	}
}

func rewardRows(rewards []model.Reward, balance int) []table.Row {
	rows := make([]table.Row, 0, len(rewards))
	for _, r := range rewards {
		mark := unaffordableMark
		if balance >= r.Cost {
			mark = affordableMark
		}
		rows = append(rows, table.Row{r.ID, r.Name, fmt.Sprintf("%d", r.Cost), mark})
	}
	return rows
}

func buildRewardTable(rewards []model.Reward, balance, width, height int) table.Model {
	t := table.New(
		table.WithColumns(rewardColumns(width)),
		table.WithRows(rewardRows(rewards, balance)),
		table.WithHeight(maxInt(1, height-2)),
	)
	t.SetWidth(width)
	t.SetStyles(rewardTableStyles())
	return t
}

// applyRewardTable refreshes rows and size, keeping the cursor in range.
// One body line is reserved for the balance.
func (m *Model) applyRewardTable(bodyHeight int) {
	width := m.width
	if width <= 0 {
		width = 80
	}
	balance := 0
	if m.record != nil {
		balance = m.record.Points
	}
	rows := rewardRows(m.rewards, balance)
	m.rewardTable.SetColumns(rewardColumns(width))
	m.rewardTable.SetRows(rows)
	m.rewardTable.SetWidth(width)
	m.rewardTable.SetHeight(maxInt(1, bodyHeight-2))
	if n := len(rows); n > 0 {
		if c := m.rewardTable.Cursor(); c < 0 || c >= n {
			m.rewardTable.SetCursor(minInt(maxInt(c, 0), n-1))
		}
	}
}

func rewardTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}
