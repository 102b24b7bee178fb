// Package tui provides the Bubble Tea board.
package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/dopabank/internal/engine"
	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/scoring"
	"github.com/verte-zerg/dopabank/internal/stats"
	"github.com/verte-zerg/dopabank/internal/store"
)

const (
	tabTimer = iota
	tabRewards
	tabHistory
	tabStats
)

const (
	historyLimit = 50
	sparkWidth   = 30
)

type mode int

const (
	modeBrowse mode = iota
	modeForm
	modeConfirm
)

type formKind int

const (
	formTaskName formKind = iota
	formAddReward
	formEditReward
)

type tickMsg time.Time

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FBF7F"))
	clockStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// Model implements the Bubble Tea board for one user.
type Model struct {
	eng       *engine.Engine
	userID    string
	canAuthor bool

	width  int
	height int

	tabs      []string
	activeTab int

	record   *model.UserRecord
	summary  stats.Summary
	rewards  []model.Reward
	running  bool
	elapsed  time.Duration
	taskName string

	rewardTable table.Model
	historyView viewport.Model
	statsView   viewport.Model

	mode       mode
	form       formKind
	inputs     []textinput.Model
	inputIndex int
	formError  string
	editID     string

	confirmID   string
	confirmName string

	status    string
	statusErr bool

	keys keyMap
	help help.Model
}

// NewModel constructs the board. canAuthor enables the reward authoring keys.
func NewModel(eng *engine.Engine, userID string, canAuthor bool) *Model {
	m := &Model{
		eng:         eng,
		userID:      userID,
		canAuthor:   canAuthor,
		tabs:        []string{"Timer", "Rewards", "History", "Stats"},
		rewardTable: buildRewardTable(nil, 0, 80, 10),
		historyView: viewport.New(0, 0),
		statsView:   viewport.New(0, 0),
		keys:        newKeyMap(),
		help:        help.New(),
	}
	m.syncKeys()
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.updateLayout()
		return m, nil
	case tickMsg:
		m.updateElapsed()
		return m, tick()
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case modeForm:
			return m.updateForm(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextTab):
		m.moveTab(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevTab):
		m.moveTab(-1)
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.updateLayout()
		return m, nil
	case key.Matches(msg, m.keys.Start):
		m.startTask()
		return m, nil
	case key.Matches(msg, m.keys.Finish):
		m.finishTask(msg.String())
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		m.cancelTask()
		return m, nil
	case key.Matches(msg, m.keys.Name):
		return m, m.openForm(formTaskName)
	case key.Matches(msg, m.keys.Buy):
		m.buySelected()
		return m, nil
	case key.Matches(msg, m.keys.Add):
		return m, m.openForm(formAddReward)
	case key.Matches(msg, m.keys.Edit):
		return m, m.openForm(formEditReward)
	case key.Matches(msg, m.keys.Delete):
		m.openConfirm()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.activeTab {
	case tabRewards:
		m.rewardTable, cmd = m.rewardTable.Update(msg)
	case tabHistory:
		m.historyView, cmd = m.historyView.Update(msg)
	case tabStats:
		m.statsView, cmd = m.statsView.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.mode != modeBrowse {
		return fitLines(m.renderModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderTabs(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	headerHeight = lipgloss.Height(activeNavStyle.Render("X"))
	if headerHeight < 1 {
		headerHeight = 1
	}
	footerHeight = lipgloss.Height(m.renderFooter())
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.historyView.Width = m.width
	m.historyView.Height = bodyHeight
	m.statsView.Width = m.width
	m.statsView.Height = bodyHeight
	m.applyRewardTable(bodyHeight)
	for i := range m.inputs {
		promptWidth := lipgloss.Width(m.inputs[i].Prompt)
		m.inputs[i].Width = maxInt(10, modalInnerWidth(m.width)-promptWidth)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	m.syncKeys()
}

// syncKeys enables the reward bindings only where they apply.
func (m *Model) syncKeys() {
	onRewards := m.activeTab == tabRewards
	m.keys.Buy.SetEnabled(onRewards)
	m.keys.Add.SetEnabled(onRewards && m.canAuthor)
	m.keys.Edit.SetEnabled(onRewards && m.canAuthor)
	m.keys.Delete.SetEnabled(onRewards && m.canAuthor)
	if onRewards {
		m.rewardTable.Focus()
	} else {
		m.rewardTable.Blur()
	}
}

// refresh reloads everything the board shows from the engine.
func (m *Model) refresh() {
	ctx := context.Background()
	u, err := m.eng.User(ctx, m.userID)
	if err != nil {
		m.setError(fmt.Errorf("failed to load user: %w", err))
		return
	}
	m.record = u
	m.summary = stats.Summarize(u, m.eng.Now().In(m.eng.Location()))
	m.updateElapsed()

	rewards, err := m.eng.ListRewards(ctx, m.userID)
	if err != nil {
		m.setError(fmt.Errorf("failed to load rewards: %w", err))
		return
	}
	m.rewards = rewards
	_, bodyHeight, _ := m.layoutHeights()
	m.applyRewardTable(bodyHeight)

	history, err := m.eng.History(ctx, m.userID, historyLimit)
	if err != nil {
		m.setError(fmt.Errorf("failed to load history: %w", err))
		return
	}
	var buf bytes.Buffer
	if err := stats.RenderHistory(&buf, fmt.Sprintf("Last %d tasks", historyLimit), history, m.eng.Location()); err != nil {
		logErrf("failed to render history: %v\n", err)
	}
	m.historyView.SetContent(strings.TrimRight(buf.String(), "\n"))

	buf.Reset()
	if err := stats.RenderSummary(&buf, m.summary, sparkWidth); err != nil {
		logErrf("failed to render stats: %v\n", err)
	}
	m.statsView.SetContent(strings.TrimRight(buf.String(), "\n"))
}

func (m *Model) updateElapsed() {
	if m.record == nil || m.record.ActiveTask == nil {
		m.running = false
		m.elapsed = 0
		return
	}
	m.running = true
	m.elapsed = m.eng.Now().Sub(m.record.ActiveTask.StartTime.Time)
	if m.elapsed < 0 {
		m.elapsed = 0
	}
}

func (m *Model) startTask() {
	res, err := m.eng.StartTask(context.Background(), m.userID)
	if err != nil {
		m.setError(err)
	} else if res.Started {
		m.setStatus("Timer started. Finish with 1-6 when done.")
	} else {
		m.setStatus(fmt.Sprintf("A task is already running (%s).", stats.FormatClock(res.Elapsed)))
	}
	m.refresh()
}

func (m *Model) finishTask(keyName string) {
	d, ok := model.ParseDifficulty(keyName)
	if !ok {
		return
	}
	c, err := m.eng.EndTask(context.Background(), m.userID, d, m.taskName)
	switch {
	case err != nil:
		m.setError(err)
	case c == nil:
		m.setStatus("No active task. Press s to start.")
	default:
		m.taskName = ""
		m.setStatus(completionMessage(c))
	}
	m.refresh()
}

func completionMessage(c *engine.Completion) string {
	return fmt.Sprintf("Done: %s, %s in %s. %.1f base × %.1f = +%d points. Balance: %d",
		c.Entry.Name,
		c.Entry.Difficulty.Label(),
		stats.FormatClock(c.Elapsed),
		c.Score.BasePoints,
		c.Score.Multiplier,
		c.Score.FinalPoints,
		c.Balance,
	)
}

func (m *Model) cancelTask() {
	canceled, err := m.eng.CancelTask(context.Background(), m.userID)
	switch {
	case err != nil:
		m.setError(err)
	case canceled:
		m.taskName = ""
		m.setStatus("Task canceled. No points awarded.")
	default:
		m.setStatus("No active task.")
	}
	m.refresh()
}

func (m *Model) selectedReward() (model.Reward, bool) {
	row := m.rewardTable.SelectedRow()
	if len(row) == 0 {
		return model.Reward{}, false
	}
	for _, r := range m.rewards {
		if r.ID == row[0] {
			return r, true
		}
	}
	return model.Reward{}, false
}

func (m *Model) buySelected() {
	r, ok := m.selectedReward()
	if !ok {
		m.setStatus("No reward selected.")
		return
	}
	rc, err := m.eng.PurchaseReward(context.Background(), m.userID, r.ID)
	switch {
	case errors.Is(err, engine.ErrInsufficientPoints):
		balance := 0
		if m.record != nil {
			balance = m.record.Points
		}
		m.setError(fmt.Errorf("not enough points for %s: need %d, have %d", r.Name, r.Cost, balance))
	case errors.Is(err, engine.ErrRewardNotFound):
		m.setError(fmt.Errorf("reward %s no longer exists", r.ID))
	case err != nil:
		m.setError(err)
	default:
		m.setStatus(fmt.Sprintf("%s. Balance: %d", rc.Message, rc.Balance))
	}
	m.refresh()
}

func (m *Model) openConfirm() {
	r, ok := m.selectedReward()
	if !ok {
		m.setStatus("No reward selected.")
		return
	}
	m.mode = modeConfirm
	m.confirmID = r.ID
	m.confirmName = r.Name
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		found, err := m.eng.DeleteReward(context.Background(), m.userID, m.confirmID)
		switch {
		case err != nil:
			m.setError(err)
		case !found:
			m.setError(fmt.Errorf("reward %s no longer exists", m.confirmID))
		default:
			m.setStatus(fmt.Sprintf("Deleted %s.", m.confirmName))
		}
		m.closeModal()
		m.refresh()
	case "n", "N", "esc", "q":
		m.closeModal()
	}
	return m, nil
}

func (m *Model) openForm(kind formKind) tea.Cmd {
	switch kind {
	case formTaskName:
		input := newFormInput("Task name: ", engine.DefaultTaskName)
		input.SetValue(m.taskName)
		m.inputs = []textinput.Model{input}
	case formAddReward:
		m.inputs = []textinput.Model{
			newFormInput("Name: ", "Coffee"),
			newFormInput("Cost: ", "100"),
		}
	case formEditReward:
		r, ok := m.selectedReward()
		if !ok {
			m.setStatus("No reward selected.")
			return nil
		}
		m.editID = r.ID
		m.inputs = []textinput.Model{
			newFormInput("Name: ", r.Name),
			newFormInput("Cost: ", fmt.Sprintf("%d", r.Cost)),
		}
	}
	m.mode = modeForm
	m.form = kind
	m.formError = ""
	m.updateLayout()
	return m.setInputIndex(0)
}

func newFormInput(prompt, placeholder string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.Placeholder = placeholder
	input.CharLimit = 64
	return input
}

func (m *Model) setInputIndex(idx int) tea.Cmd {
	count := len(m.inputs)
	if count == 0 {
		return nil
	}
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.inputIndex = idx
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == m.inputIndex {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeModal()
		return m, nil
	case tea.KeyTab:
		return m, m.setInputIndex(m.inputIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setInputIndex(m.inputIndex - 1)
	case tea.KeyEnter:
		if m.inputIndex < len(m.inputs)-1 {
			return m, m.setInputIndex(m.inputIndex + 1)
		}
		if err := m.applyForm(); err != nil {
			m.formError = err.Error()
			return m, nil
		}
		m.closeModal()
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.inputIndex], cmd = m.inputs[m.inputIndex].Update(msg)
	return m, cmd
}

func (m *Model) applyForm() error {
	ctx := context.Background()
	switch m.form {
	case formTaskName:
		m.taskName = strings.TrimSpace(m.inputs[0].Value())
		if m.taskName == "" {
			m.setStatus("Task name cleared.")
		} else {
			m.setStatus(fmt.Sprintf("Next completion will be recorded as %q.", m.taskName))
		}
		return nil
	case formAddReward:
		name := strings.TrimSpace(m.inputs[0].Value())
		if name == "" {
			return fmt.Errorf("reward name must not be empty")
		}
		cost, err := model.ParseCost(m.inputs[1].Value())
		if err != nil {
			return err
		}
		if _, err := m.eng.AddReward(ctx, m.userID, name, cost); err != nil {
			return err
		}
		m.setStatus(fmt.Sprintf("Added %s for %d points.", name, cost))
		return nil
	case formEditReward:
		name := m.inputs[0].Value()
		patch := engine.RewardPatch{Name: &name}
		if raw := strings.TrimSpace(m.inputs[1].Value()); raw != "" {
			cost, err := model.ParseCost(raw)
			if err != nil {
				return err
			}
			patch.Cost = &cost
		}
		found, err := m.eng.UpdateReward(ctx, m.userID, m.editID, patch)
		if err != nil {
			return err
		}
		if !found {
			return engine.ErrRewardNotFound
		}
		m.setStatus("Reward updated.")
		return nil
	}
	return nil
}

func (m *Model) closeModal() {
	m.mode = modeBrowse
	m.inputs = nil
	m.inputIndex = 0
	m.formError = ""
	m.editID = ""
	m.confirmID = ""
	m.confirmName = ""
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	var perr *store.PersistError
	if errors.As(err, &perr) {
		m.status = fmt.Sprintf("Saved in memory but not on disk: %v", perr)
	} else {
		m.status = err.Error()
	}
	m.statusErr = true
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderBody(height int) string {
	switch m.activeTab {
	case tabTimer:
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, m.renderTimer())
	case tabRewards:
		return m.renderRewards()
	case tabHistory:
		return m.historyView.View()
	case tabStats:
		return m.statsView.View()
	}
	return ""
}

func (m *Model) renderTimer() string {
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		metricCard("Balance", fmt.Sprintf("%d", m.summary.Balance)),
		metricCard("Tasks", fmt.Sprintf("%d", m.summary.TasksCompleted)),
		metricCard("Today", fmt.Sprintf("%d pts", m.summary.TodayPoints)),
	)
	lines := []string{cards, ""}
	if !m.running {
		lines = append(lines,
			cardTitleStyle.Render("No active task"),
			clockStyle.Render(stats.FormatClock(0)),
			"",
			headerStyle.Render("Press s to start the timer."),
		)
		return strings.Join(lines, "\n")
	}
	name := m.taskName
	if name == "" {
		name = engine.DefaultTaskName
	}
	worth := scoring.ComputeDuration(m.elapsed, model.DifficultyStandard).FinalPoints
	lines = append(lines,
		cardTitleStyle.Render(name),
		clockStyle.Render(stats.FormatClock(m.elapsed)),
		headerStyle.Render(fmt.Sprintf("Worth %d points at Standard", worth)),
		"",
		"Finish with difficulty:",
	)
	for i, d := range model.Difficulties {
		lines = append(lines, fmt.Sprintf("  %d  %-13s ×%.1f", i+1, d.Label(), scoring.Multiplier(d)))
	}
	return strings.Join(lines, "\n")
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) renderRewards() string {
	if len(m.rewards) == 0 {
		msg := "No rewards yet."
		if m.canAuthor {
			msg += " Press a to add one."
		}
		return msg
	}
	balance := headerStyle.Render(fmt.Sprintf("Balance: %d points", m.summary.Balance))
	return tableMutedStyle.Render(m.rewardTable.View()) + "\n" + balance
}

func (m *Model) renderFooter() string {
	segments := []string{fmt.Sprintf("Balance %d", m.summary.Balance)}
	segments = append(segments, fmt.Sprintf("Tasks %d", m.summary.TasksCompleted))
	if m.running {
		segments = append(segments, "Active "+stats.FormatClock(m.elapsed))
	} else {
		segments = append(segments, "Idle")
	}
	segments = append(segments, fmt.Sprintf("Today %d tasks · %d pts", m.summary.TodayTasks, m.summary.TodayPoints))
	lines := []string{footerStyle.Render(strings.Join(segments, "  "))}
	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errorStyle
		}
		lines = append(lines, wrapText(m.status, m.width, style))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}

func (m *Model) renderModal() string {
	var body []string
	switch m.mode {
	case modeConfirm:
		body = []string{
			cardValueStyle.Render("Delete reward"),
			fmt.Sprintf("Delete %s (id %s)?", m.confirmName, m.confirmID),
			headerStyle.Render("y to confirm / n to cancel"),
		}
	case modeForm:
		titles := map[formKind]string{
			formTaskName:   "Name the running task",
			formAddReward:  "New reward",
			formEditReward: "Edit reward",
		}
		body = []string{cardValueStyle.Render(titles[m.form])}
		for _, input := range m.inputs {
			body = append(body, input.View())
		}
		if m.form == formEditReward {
			body = append(body, headerStyle.Render("Leave a field empty to keep it."))
		}
		body = append(body, headerStyle.Render("tab: next field  enter: apply  esc: cancel"))
		if m.formError != "" {
			body = append(body, wrapText(m.formError, modalInnerWidth(m.width), errorStyle))
		}
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
