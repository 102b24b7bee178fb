package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/verte-zerg/dopabank/internal/access"
	"github.com/verte-zerg/dopabank/internal/engine"
	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/store"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// lastText returns the text of the most recent message or edit.
func (f *fakeSender) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		switch c := f.sent[i].(type) {
		case tgbotapi.MessageConfig:
			return c.Text
		case tgbotapi.EditMessageTextConfig:
			return c.Text
		}
	}
	return ""
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch c := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, c.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, c.Text)
		}
	}
	return out
}

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

const (
	chatID  = int64(100)
	userID  = int64(42)
	adminID = int64(7)
)

func newTestBot(t *testing.T, scope model.RewardScope) (*Bot, *fakeSender, *engine.Engine, *fakeClock) {
	t.Helper()
	b, err := store.OpenJSON(t.TempDir())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	st, err := store.Open(context.Background(), b, scope)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	clock := &fakeClock{t: time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)}
	eng := engine.New(st, engine.Options{Location: time.UTC, Now: clock.Now})
	sender := &fakeSender{}
	policy := access.NewPolicy([]string{"7"}, false)
	return New(sender, eng, policy, nil), sender, eng, clock
}

func textUpdate(from int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Sam"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: from},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 9,
			Chat:      &tgbotapi.Chat{ID: chatID},
		},
	}}
}

func TestTaskFlow(t *testing.T) {
	bot, sender, eng, clock := newTestBot(t, model.ScopePerUser)
	ctx := context.Background()

	bot.HandleUpdate(ctx, textUpdate(userID, btnStartTask))
	if !strings.Contains(sender.lastText(), "Timer started") {
		t.Fatalf("unexpected reply %q", sender.lastText())
	}
	clock.Advance(30 * time.Second)
	bot.HandleUpdate(ctx, textUpdate(userID, btnStartTask))
	if !strings.Contains(sender.lastText(), "Elapsed: 00:00:30") {
		t.Fatalf("unexpected reply %q", sender.lastText())
	}

	bot.HandleUpdate(ctx, textUpdate(userID, model.DifficultyHard.Label()))
	reply := sender.lastText()
	if !strings.Contains(reply, "Points earned: 9") || !strings.Contains(reply, "Balance: 9 points") || !strings.Contains(reply, "x1.5") {
		t.Fatalf("unexpected completion %q", reply)
	}

	bot.HandleUpdate(ctx, textUpdate(userID, model.DifficultyHard.Label()))
	if !strings.Contains(sender.lastText(), "no active task") {
		t.Fatalf("expected idle reply, got %q", sender.lastText())
	}

	u, err := eng.User(ctx, "42")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u.Points != 9 || u.TasksCompleted != 1 || u.DifficultyStats[model.DifficultyHard] != 1 {
		t.Fatalf("unexpected record %+v", u)
	}
}

func TestRewardDialogAndPurchase(t *testing.T) {
	bot, sender, eng, _ := newTestBot(t, model.ScopePerUser)
	ctx := context.Background()

	bot.HandleUpdate(ctx, textUpdate(userID, btnAddReward))
	if sender.lastText() != promptAddName {
		t.Fatalf("unexpected prompt %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, textUpdate(userID, "Coffee"))
	bot.HandleUpdate(ctx, textUpdate(userID, "abc"))
	if sender.lastText() != promptBadCost {
		t.Fatalf("unexpected prompt %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, textUpdate(userID, "100"))
	if !strings.Contains(sender.lastText(), `"Coffee" for 100 points added`) {
		t.Fatalf("unexpected reply %q", sender.lastText())
	}

	bot.HandleUpdate(ctx, callbackUpdate(userID, "buy:1"))
	if len(sender.requests) == 0 {
		t.Fatalf("expected callback answer")
	}
	if u, _ := eng.User(ctx, "42"); u.Points != 0 {
		t.Fatalf("balance changed without purchase")
	}

	if _, err := eng.Admin().SetBalance(ctx, "42", 150); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	bot.HandleUpdate(ctx, callbackUpdate(userID, "buy:1"))
	if !strings.Contains(sender.lastText(), `Buy "Coffee" for 100 points?`) {
		t.Fatalf("expected confirmation, got %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, callbackUpdate(userID, "buy_ok:1"))
	found := false
	for _, text := range sender.texts() {
		if strings.Contains(text, "You bought Coffee for 100 points") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected purchase receipt in %q", sender.texts())
	}
	if u, _ := eng.User(ctx, "42"); u.Points != 50 {
		t.Fatalf("expected balance 50, got %d", u.Points)
	}

	bot.HandleUpdate(ctx, callbackUpdate(userID, "buy_ok:1"))
	texts := sender.texts()
	if !contains(texts, "Error: insufficient points") {
		t.Fatalf("expected insufficient points error in %q", texts)
	}
}

func TestEditAndDeleteFlow(t *testing.T) {
	bot, sender, eng, _ := newTestBot(t, model.ScopePerUser)
	ctx := context.Background()
	if _, err := eng.AddReward(ctx, "42", "Tea", 5); err != nil {
		t.Fatalf("AddReward: %v", err)
	}

	bot.HandleUpdate(ctx, callbackUpdate(userID, "edit:1"))
	if !strings.Contains(sender.lastText(), `"Tea"`) {
		t.Fatalf("unexpected prompt %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, textUpdate(userID, "skip"))
	bot.HandleUpdate(ctx, textUpdate(userID, "8"))
	if sender.lastText() != "Reward updated!" {
		t.Fatalf("unexpected reply %q", sender.lastText())
	}
	r, err := eng.Reward(ctx, "42", "1")
	if err != nil || r.Name != "Tea" || r.Cost != 8 {
		t.Fatalf("unexpected reward %+v, %v", r, err)
	}

	bot.HandleUpdate(ctx, callbackUpdate(userID, "del:1"))
	bot.HandleUpdate(ctx, callbackUpdate(userID, cbCancelDelete))
	if _, err := eng.Reward(ctx, "42", "1"); err != nil {
		t.Fatalf("reward deleted without confirmation")
	}
	bot.HandleUpdate(ctx, callbackUpdate(userID, "del_ok:1"))
	if _, err := eng.Reward(ctx, "42", "1"); err == nil {
		t.Fatalf("expected reward to be deleted")
	}
}

func TestGlobalCatalogNeedsAdmin(t *testing.T) {
	bot, sender, eng, _ := newTestBot(t, model.ScopeGlobal)
	ctx := context.Background()

	bot.HandleUpdate(ctx, textUpdate(userID, btnAddReward))
	if !strings.Contains(sender.lastText(), "Only admins") {
		t.Fatalf("expected refusal, got %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, textUpdate(adminID, btnAddReward))
	bot.HandleUpdate(ctx, textUpdate(adminID, "Cinema"))
	bot.HandleUpdate(ctx, textUpdate(adminID, "300"))
	list, err := eng.ListRewards(ctx, "42")
	if err != nil || len(list) != 1 || list[0].Name != "Cinema" {
		t.Fatalf("expected shared reward, got %+v, %v", list, err)
	}
}

func TestSetBalanceCommand(t *testing.T) {
	bot, sender, eng, _ := newTestBot(t, model.ScopePerUser)
	ctx := context.Background()

	bot.HandleUpdate(ctx, textUpdate(userID, "/setbalance 42 1000"))
	if !strings.Contains(sender.lastText(), "Only admins") {
		t.Fatalf("expected refusal, got %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, textUpdate(adminID, "/setbalance 42 -1"))
	if !strings.Contains(sender.lastText(), "non-negative") {
		t.Fatalf("expected validation error, got %q", sender.lastText())
	}
	bot.HandleUpdate(ctx, textUpdate(adminID, "/setbalance 42 1000"))
	if u, _ := eng.User(ctx, "42"); u.Points != 1000 {
		t.Fatalf("expected balance 1000, got %d", u.Points)
	}
}

func TestCommandAbortsDialog(t *testing.T) {
	bot, sender, _, _ := newTestBot(t, model.ScopePerUser)
	ctx := context.Background()
	bot.HandleUpdate(ctx, textUpdate(userID, btnAddReward))
	bot.HandleUpdate(ctx, textUpdate(userID, "/cancel"))
	bot.HandleUpdate(ctx, textUpdate(userID, btnStartTask))
	if !strings.Contains(sender.lastText(), "Timer started") {
		t.Fatalf("dialog should have been aborted, got %q", sender.lastText())
	}
}

func contains(texts []string, needle string) bool {
	for _, text := range texts {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
