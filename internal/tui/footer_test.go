package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/help"

	"github.com/verte-zerg/dopabank/internal/stats"
)

func TestRenderFooterFormats(t *testing.T) {
	m := &Model{
		summary: stats.Summary{
			Balance:        120,
			TasksCompleted: 7,
			TodayTasks:     2,
			TodayPoints:    35,
		},
		running: true,
		elapsed: 3723 * time.Second,
		status:  "Timer started.",
		keys:    newKeyMap(),
		help:    help.New(),
	}
	out := m.renderFooter()
	if !containsAll(out, []string{"Balance 120", "Tasks 7", "Active 01:02:03", "Today 2 tasks · 35 pts", "Timer started.", "quit"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}

	m.running = false
	if out := m.renderFooter(); !strings.Contains(out, "Idle") {
		t.Fatalf("expected idle marker: %s", out)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
