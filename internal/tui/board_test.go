package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/dopabank/internal/engine"
	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBoard(t *testing.T) (*Model, *engine.Engine, *fakeClock) {
	t.Helper()
	b, err := store.OpenJSON(t.TempDir())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	st, err := store.Open(context.Background(), b, model.ScopePerUser)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	clock := &fakeClock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	eng := engine.New(st, engine.Options{Location: time.UTC, Now: clock.Now})
	m := NewModel(eng, "local", true)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, eng, clock
}

func press(m *Model, keys ...string) {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m.Update(msg)
	}
}

func TestBoardStartAndFinish(t *testing.T) {
	m, eng, clock := newTestBoard(t)

	press(m, "s")
	if !m.running {
		t.Fatalf("expected running timer, status %q", m.status)
	}
	clock.Advance(25 * time.Second)
	m.Update(tickMsg(clock.Now()))
	if m.elapsed != 25*time.Second {
		t.Fatalf("unexpected elapsed %v", m.elapsed)
	}
	if !strings.Contains(m.View(), "00:00:25") {
		t.Fatalf("view should show elapsed clock")
	}

	press(m, "3")
	if m.running || m.statusErr {
		t.Fatalf("expected completion, status %q", m.status)
	}
	if !strings.Contains(m.status, "+5 points") || !strings.Contains(m.status, "Balance: 5") {
		t.Fatalf("unexpected status %q", m.status)
	}
	u, err := eng.User(context.Background(), "local")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u.Points != 5 || u.TasksCompleted != 1 {
		t.Fatalf("unexpected record %+v", u)
	}
}

func TestBoardNamedTask(t *testing.T) {
	m, eng, clock := newTestBoard(t)
	press(m, "s", "n")
	if m.mode != modeForm {
		t.Fatalf("expected name form")
	}
	press(m, "W", "r", "i", "t", "e", "enter")
	clock.Advance(10 * time.Second)
	press(m, "1")
	hist, err := eng.History(context.Background(), "local", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Name != "Write" || hist[0].Difficulty != model.DifficultyVeryEasy {
		t.Fatalf("unexpected history %+v", hist)
	}
	if m.taskName != "" {
		t.Fatalf("task name should reset after completion")
	}
}

func TestBoardRewardFlow(t *testing.T) {
	m, eng, _ := newTestBoard(t)
	ctx := context.Background()
	press(m, "tab")
	if m.activeTab != tabRewards {
		t.Fatalf("expected rewards tab")
	}

	press(m, "a", "C", "o", "f", "f", "e", "e", "enter", "x", "enter")
	if m.mode != modeForm || m.formError == "" {
		t.Fatalf("expected cost validation error, mode %v", m.mode)
	}
	press(m, "esc", "a", "C", "o", "f", "f", "e", "e", "enter", "1", "0", "0", "enter")
	if m.mode != modeBrowse || len(m.rewards) != 1 {
		t.Fatalf("expected reward to be added, status %q", m.status)
	}

	press(m, "enter")
	if !m.statusErr || !strings.Contains(m.status, "not enough points") {
		t.Fatalf("expected insufficient points, got %q", m.status)
	}

	if _, err := eng.Admin().SetBalance(ctx, "local", 150); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	m.refresh()
	press(m, "enter")
	if m.statusErr || !strings.Contains(m.status, "You bought Coffee for 100 points") {
		t.Fatalf("expected purchase, got %q", m.status)
	}

	press(m, "d")
	if m.mode != modeConfirm {
		t.Fatalf("expected delete confirmation")
	}
	press(m, "n")
	if len(m.rewards) != 1 {
		t.Fatalf("reward deleted without confirmation")
	}
	press(m, "d", "y")
	if len(m.rewards) != 0 {
		t.Fatalf("expected reward to be deleted")
	}
	u, _ := eng.User(ctx, "local")
	if u.Points != 50 {
		t.Fatalf("expected balance 50, got %d", u.Points)
	}
}

func TestBoardReadOnlyCatalog(t *testing.T) {
	m, _, _ := newTestBoard(t)
	m.canAuthor = false
	m.syncKeys()
	press(m, "tab", "a")
	if m.mode != modeBrowse {
		t.Fatalf("authoring keys should be disabled")
	}
}
