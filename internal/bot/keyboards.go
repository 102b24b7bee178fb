package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/verte-zerg/dopabank/internal/model"
)

const (
	btnStartTask  = "🚀 Start task"
	btnRewards    = "🎁 Rewards"
	btnStats      = "📊 Stats"
	btnStatus     = "⏱️ Status"
	btnCancelTask = "❌ Cancel task"
	btnRewardList = "🛍️ Reward list"
	btnAddReward  = "➕ Add reward"
	btnMainMenu   = "➡️ Main menu"

	affordableMark   = "✅"
	unaffordableMark = "❌"
)

// Callback data is "<action>" or "<action>:<reward id>".
const (
	cbBuy           = "buy"
	cbConfirmBuy    = "buy_ok"
	cbCancelBuy     = "buy_no"
	cbEdit          = "edit"
	cbDelete        = "del"
	cbConfirmDelete = "del_ok"
	cbCancelDelete  = "del_no"
	cbBack          = "back"
)

func callbackData(action, rewardID string) string {
	if rewardID == "" {
		return action
	}
	return action + ":" + rewardID
}

func parseCallback(data string) (action, rewardID string) {
	action, rewardID, _ = strings.Cut(data, ":")
	return action, rewardID
}

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnStartTask)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRewards),
			tgbotapi.NewKeyboardButton(btnStats),
			tgbotapi.NewKeyboardButton(btnStatus),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func difficultyMenu() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(model.Difficulties)+1)
	for _, d := range model.Difficulties {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(d.Label())))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelTask)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// difficultyFromLabel maps a difficulty menu button back to its tag.
func difficultyFromLabel(text string) (model.Difficulty, bool) {
	for _, d := range model.Difficulties {
		if d.Label() == text {
			return d, true
		}
	}
	return "", false
}

func rewardsMenu(canAuthor bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnRewardList)),
	}
	if canAuthor {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddReward)))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnMainMenu)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

func rewardButtonText(r model.Reward, balance int) string {
	mark := unaffordableMark
	if balance >= r.Cost {
		mark = affordableMark
	}
	return fmt.Sprintf("%s %s - %d points", mark, r.Name, r.Cost)
}

func rewardsInline(rewards []model.Reward, balance int, canAuthor bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rewards)*2+1)
	for _, r := range rewards {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(rewardButtonText(r, balance), callbackData(cbBuy, r.ID)),
		))
		if canAuthor {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", callbackData(cbEdit, r.ID)),
				tgbotapi.NewInlineKeyboardButtonData("🗑️ Delete", callbackData(cbDelete, r.ID)),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Back", cbBack),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard(okAction, noAction, rewardID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Yes", callbackData(okAction, rewardID)),
		tgbotapi.NewInlineKeyboardButtonData("❌ No", noAction),
	))
}
