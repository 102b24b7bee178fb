// Package bot exposes the economy over the Telegram Bot API.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/verte-zerg/dopabank/internal/access"
	"github.com/verte-zerg/dopabank/internal/engine"
	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/stats"
	"github.com/verte-zerg/dopabank/internal/store"
)

const (
	defaultHistoryLimit = 10
	sparkWidth          = 20
)

// Sender is the part of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot routes Telegram updates to the engine.
type Bot struct {
	api     Sender
	eng     *engine.Engine
	policy  access.Policy
	log     *slog.Logger
	dialogs dialogs
}

// New builds a bot. A nil logger discards output.
func New(api Sender, eng *engine.Engine, policy access.Policy, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bot{api: api, eng: eng, policy: policy, log: logger}
}

// Run long-polls api until ctx is canceled.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	b.log.Info("bot started", "account", api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (b *Bot) canAuthor(userID string) bool {
	return b.policy.CanAuthorRewards(userID, b.eng.Scope())
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := userKey(msg.From.ID)
	key := dialogKey{chatID: chatID, userID: msg.From.ID}

	if msg.IsCommand() {
		b.dialogs.clear(key)
		b.handleCommand(ctx, msg, userID)
		return
	}
	if d, ok := b.dialogs.get(key); ok {
		b.continueDialog(ctx, chatID, userID, key, d, msg.Text)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if d, ok := difficultyFromLabel(text); ok {
		b.endTask(ctx, chatID, userID, d)
		return
	}
	switch text {
	case btnStartTask:
		b.startTask(ctx, chatID, userID)
	case btnCancelTask:
		b.cancelTask(ctx, chatID, userID)
	case btnStatus:
		b.status(ctx, chatID, userID)
	case btnStats:
		b.stats(ctx, chatID, userID)
	case btnRewards:
		b.reply(chatID, "🎁 Reward shop\n\nSpend your points on rewards or manage the catalog.", rewardsMenu(b.canAuthor(userID)))
	case btnRewardList:
		b.listRewards(ctx, chatID, userID)
	case btnAddReward:
		if !b.canAuthor(userID) {
			b.reply(chatID, "Only admins can change the shared reward catalog.", nil)
			return
		}
		b.dialogs.set(key, dialog{step: stepAddName})
		b.reply(chatID, promptAddName, tgbotapi.NewRemoveKeyboard(true))
	case btnMainMenu:
		b.reply(chatID, "Back to the main menu.", mainMenu())
	default:
		b.reply(chatID, "Use the menu buttons or /help.", mainMenu())
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, userID string) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		u, err := b.eng.User(ctx, userID)
		if err != nil {
			b.fail(chatID, userID, err)
			return
		}
		b.reply(chatID, fmt.Sprintf(
			"Hi, %s! This is the Dopamine Bank.\nTrack your tasks and earn points for them.\nYou have %d points.",
			msg.From.FirstName, u.Points,
		), mainMenu())
	case "help":
		b.reply(chatID, strings.Join([]string{
			"/start - main menu",
			"/status - balance and running task",
			"/stats - statistics",
			"/history [n] - last completed tasks",
			"/cancel - abort the current input",
			"/setbalance <user id> <points> - admins only",
		}, "\n"), mainMenu())
	case "status":
		b.status(ctx, chatID, userID)
	case "stats":
		b.stats(ctx, chatID, userID)
	case "history":
		b.history(ctx, chatID, userID, msg.CommandArguments())
	case "cancel":
		b.reply(chatID, "Input canceled.", mainMenu())
	case "setbalance":
		b.setBalance(ctx, chatID, userID, msg.CommandArguments())
	default:
		b.reply(chatID, "Unknown command. Try /help.", mainMenu())
	}
}

func (b *Bot) startTask(ctx context.Context, chatID int64, userID string) {
	res, err := b.eng.StartTask(ctx, userID)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	if !res.Started {
		b.reply(chatID, fmt.Sprintf(
			"You already have an active task!\nElapsed: %s\nPick its difficulty to finish:",
			stats.FormatClock(res.Elapsed),
		), difficultyMenu())
		return
	}
	b.log.Info("task started", "user", userID)
	b.reply(chatID, "Timer started! Time is accumulating.\nWhen you are done, pick the task difficulty:", difficultyMenu())
}

func (b *Bot) endTask(ctx context.Context, chatID int64, userID string, d model.Difficulty) {
	c, err := b.eng.EndTask(ctx, userID, d, "")
	if err != nil && c == nil {
		b.fail(chatID, userID, err)
		return
	}
	if c == nil {
		b.reply(chatID, fmt.Sprintf("You have no active task! Press %q to begin.", btnStartTask), mainMenu())
		return
	}
	b.log.Info("task completed", "user", userID, "difficulty", string(c.Entry.Difficulty), "points", c.Score.FinalPoints)
	b.reply(chatID, completionText(c), mainMenu())
	if err != nil {
		b.fail(chatID, userID, err)
	}
}

func completionText(c *engine.Completion) string {
	return fmt.Sprintf(
		"Task complete! 🎉\n\n⏱️ Time: %s\n🔢 Base points: %.1f\n📊 Difficulty: %s (x%.1f)\n💰 Points earned: %d\n\nBalance: %d points",
		stats.FormatClock(c.Elapsed),
		c.Score.BasePoints,
		c.Entry.Difficulty.Label(),
		c.Score.Multiplier,
		c.Score.FinalPoints,
		c.Balance,
	)
}

func (b *Bot) cancelTask(ctx context.Context, chatID int64, userID string) {
	canceled, err := b.eng.CancelTask(ctx, userID)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	if !canceled {
		b.reply(chatID, "You have no active task!", mainMenu())
		return
	}
	b.reply(chatID, "Task canceled. No points awarded.", mainMenu())
}

func (b *Bot) status(ctx context.Context, chatID int64, userID string) {
	u, err := b.eng.User(ctx, userID)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	lines := []string{
		fmt.Sprintf("💰 Balance: %d points", u.Points),
		fmt.Sprintf("🔢 Tasks completed: %d", u.TasksCompleted),
	}
	markup := any(mainMenu())
	if elapsed, running, err := b.eng.ActiveElapsed(ctx, userID); err == nil && running {
		lines = append(lines, "⏱️ Active task: "+stats.FormatClock(elapsed))
		markup = difficultyMenu()
	} else {
		lines = append(lines, "⏱️ No active task")
	}
	b.reply(chatID, strings.Join(lines, "\n"), markup)
}

func (b *Bot) stats(ctx context.Context, chatID int64, userID string) {
	s, err := b.eng.Stats(ctx, userID)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	var buf bytes.Buffer
	if err := stats.RenderSummary(&buf, s, sparkWidth); err != nil {
		b.fail(chatID, userID, err)
		return
	}
	b.replyPre(chatID, "📊 Your statistics", buf.String())
}

func (b *Bot) history(ctx context.Context, chatID int64, userID, args string) {
	limit := defaultHistoryLimit
	if args = strings.TrimSpace(args); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			b.reply(chatID, "Usage: /history [count]", nil)
			return
		}
		limit = n
	}
	entries, err := b.eng.History(ctx, userID, limit)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	var buf bytes.Buffer
	if err := stats.RenderHistory(&buf, "", entries, b.eng.Location()); err != nil {
		b.fail(chatID, userID, err)
		return
	}
	b.replyPre(chatID, "📜 Recent tasks", buf.String())
}

func (b *Bot) setBalance(ctx context.Context, chatID int64, userID, args string) {
	if !b.policy.CanSetBalance(userID) {
		b.reply(chatID, "Only admins can set balances.", nil)
		return
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(chatID, "Usage: /setbalance <user id> <points>", nil)
		return
	}
	points, err := model.ParseBalance(fields[1])
	if err != nil {
		b.reply(chatID, "The balance must be a non-negative whole number.", nil)
		return
	}
	stored, err := b.eng.Admin().SetBalance(ctx, fields[0], points)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	b.log.Info("balance set", "admin", userID, "user", fields[0], "points", stored)
	b.reply(chatID, fmt.Sprintf("Balance of %s is now %d points.", fields[0], stored), nil)
}

func (b *Bot) listRewards(ctx context.Context, chatID int64, userID string) {
	rewards, err := b.eng.ListRewards(ctx, userID)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	canAuthor := b.canAuthor(userID)
	if len(rewards) == 0 {
		b.reply(chatID, "There are no rewards yet. Create some!", rewardsMenu(canAuthor))
		return
	}
	u, err := b.eng.User(ctx, userID)
	if err != nil {
		b.fail(chatID, userID, err)
		return
	}
	b.reply(chatID, rewardListText(u.Points), rewardsInline(rewards, u.Points, canAuthor))
}

func rewardListText(balance int) string {
	return fmt.Sprintf("Available rewards (you have %d points):\n%s affordable\n%s not enough points",
		balance, affordableMark, unaffordableMark)
}

func (b *Bot) continueDialog(ctx context.Context, chatID int64, userID string, key dialogKey, d dialog, text string) {
	next, prompt, draft := d.advance(text)
	b.dialogs.set(key, next)
	if draft == nil {
		b.reply(chatID, prompt, nil)
		return
	}
	if !b.canAuthor(userID) {
		b.reply(chatID, "Only admins can change the shared reward catalog.", mainMenu())
		return
	}
	menu := rewardsMenu(true)
	if draft.rewardID == "" {
		id, err := b.eng.AddReward(ctx, userID, *draft.name, *draft.cost)
		if err != nil {
			b.fail(chatID, userID, err)
			return
		}
		b.log.Info("reward added", "user", userID, "reward", id)
		b.reply(chatID, fmt.Sprintf("Reward %q for %d points added!", *draft.name, *draft.cost), menu)
		return
	}
	found, err := b.eng.UpdateReward(ctx, userID, draft.rewardID, engine.RewardPatch{Name: draft.name, Cost: draft.cost})
	switch {
	case err != nil:
		b.fail(chatID, userID, err)
	case !found:
		b.reply(chatID, "That reward is no longer available.", menu)
	default:
		b.reply(chatID, "Reward updated!", menu)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		b.answer(cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	userID := userKey(cb.From.ID)
	action, rewardID := parseCallback(cb.Data)

	switch action {
	case cbBuy:
		r, err := b.eng.Reward(ctx, userID, rewardID)
		if err != nil {
			b.answer(cb.ID, "This reward is no longer available")
			return
		}
		u, err := b.eng.User(ctx, userID)
		if err != nil {
			b.answer(cb.ID, "Something went wrong")
			b.log.Error("load user", "user", userID, "err", err)
			return
		}
		if u.Points < r.Cost {
			b.answer(cb.ID, "You do not have enough points for this reward!")
			return
		}
		b.edit(chatID, msgID, fmt.Sprintf("Buy %q for %d points?", r.Name, r.Cost), ptr(confirmKeyboard(cbConfirmBuy, cbCancelBuy, r.ID)))
	case cbConfirmBuy:
		rc, err := b.eng.PurchaseReward(ctx, userID, rewardID)
		switch {
		case errors.Is(err, engine.ErrRewardNotFound):
			b.edit(chatID, msgID, "Error: reward not found", nil)
		case errors.Is(err, engine.ErrInsufficientPoints):
			b.edit(chatID, msgID, "Error: insufficient points", nil)
		case err != nil:
			b.edit(chatID, msgID, "Error: "+err.Error(), nil)
			b.log.Error("purchase", "user", userID, "reward", rewardID, "err", err)
		default:
			b.log.Info("reward bought", "user", userID, "reward", rewardID, "balance", rc.Balance)
			b.edit(chatID, msgID, fmt.Sprintf("%s\nBalance: %d points\n\nEnjoy your reward! 🎉", rc.Message, rc.Balance), nil)
		}
		b.reply(chatID, "What next?", rewardsMenu(b.canAuthor(userID)))
	case cbCancelBuy:
		b.edit(chatID, msgID, "Purchase canceled", nil)
		b.reply(chatID, "What next?", rewardsMenu(b.canAuthor(userID)))
	case cbEdit:
		if !b.canAuthor(userID) {
			b.answer(cb.ID, "Only admins can edit rewards")
			return
		}
		r, err := b.eng.Reward(ctx, userID, rewardID)
		if err != nil {
			b.answer(cb.ID, "This reward is no longer available")
			return
		}
		b.dialogs.set(dialogKey{chatID: chatID, userID: cb.From.ID}, dialog{step: stepEditName, rewardID: r.ID})
		b.edit(chatID, msgID, promptEditName(r.Name), nil)
	case cbDelete:
		if !b.canAuthor(userID) {
			b.answer(cb.ID, "Only admins can delete rewards")
			return
		}
		r, err := b.eng.Reward(ctx, userID, rewardID)
		if err != nil {
			b.answer(cb.ID, "This reward is no longer available")
			return
		}
		b.edit(chatID, msgID, fmt.Sprintf("Delete the reward %q?", r.Name), ptr(confirmKeyboard(cbConfirmDelete, cbCancelDelete, r.ID)))
	case cbConfirmDelete:
		if !b.canAuthor(userID) {
			b.answer(cb.ID, "Only admins can delete rewards")
			return
		}
		found, err := b.eng.DeleteReward(ctx, userID, rewardID)
		switch {
		case err != nil:
			b.edit(chatID, msgID, "Error: "+err.Error(), nil)
		case !found:
			b.edit(chatID, msgID, "Error: reward not found", nil)
		default:
			b.log.Info("reward deleted", "user", userID, "reward", rewardID)
			b.edit(chatID, msgID, "Reward deleted!", nil)
		}
		b.reply(chatID, "What next?", rewardsMenu(true))
	case cbCancelDelete:
		b.edit(chatID, msgID, "Deletion canceled", nil)
		b.reply(chatID, "What next?", rewardsMenu(b.canAuthor(userID)))
	case cbBack:
		b.request(tgbotapi.NewDeleteMessage(chatID, msgID))
		b.reply(chatID, "Back to the reward shop.", rewardsMenu(b.canAuthor(userID)))
	}
	b.answer(cb.ID, "")
}

func ptr[T any](v T) *T { return &v }

func (b *Bot) reply(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	b.send(msg)
}

func (b *Bot) replyPre(chatID int64, title, body string) {
	msg := tgbotapi.NewMessage(chatID, html.EscapeString(title)+"\n<pre>"+html.EscapeString(strings.TrimRight(body, "\n"))+"</pre>")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenu()
	b.send(msg)
}

func (b *Bot) edit(chatID int64, msgID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ReplyMarkup = markup
	b.send(edit)
}

func (b *Bot) answer(callbackID, text string) {
	if callbackID == "" {
		return
	}
	b.request(tgbotapi.NewCallback(callbackID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func (b *Bot) request(c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.log.Error("request failed", "err", err)
	}
}

// fail reports err to the user and the log.
func (b *Bot) fail(chatID int64, userID string, err error) {
	var perr *store.PersistError
	if errors.As(err, &perr) {
		b.log.Error("persist failed", "user", userID, "op", perr.Op, "path", perr.Path, "err", perr.Err)
		b.reply(chatID, "⚠️ The change was applied but could not be saved to disk.", nil)
		return
	}
	b.log.Error("request failed", "user", userID, "err", err)
	b.reply(chatID, "Something went wrong. Try again.", nil)
}
