package bot

import (
	"testing"

	"github.com/verte-zerg/dopabank/internal/model"
)

func TestRewardsInlineMarksAffordability(t *testing.T) {
	rewards := []model.Reward{
		{ID: "1", Name: "Tea", Cost: 5},
		{ID: "2", Name: "Console", Cost: 500},
	}
	kb := rewardsInline(rewards, 100, false)
	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("expected 2 reward rows and a back row, got %d", len(kb.InlineKeyboard))
	}
	first := kb.InlineKeyboard[0][0]
	if first.Text != "✅ Tea - 5 points" || first.CallbackData == nil || *first.CallbackData != "buy:1" {
		t.Fatalf("unexpected first button %+v", first)
	}
	if got := kb.InlineKeyboard[1][0].Text; got != "❌ Console - 500 points" {
		t.Fatalf("unexpected second button %q", got)
	}

	withAuthor := rewardsInline(rewards, 100, true)
	if len(withAuthor.InlineKeyboard) != 5 {
		t.Fatalf("expected edit/delete rows, got %d", len(withAuthor.InlineKeyboard))
	}
	if data := *withAuthor.InlineKeyboard[1][1].CallbackData; data != "del:1" {
		t.Fatalf("unexpected delete data %q", data)
	}
}

func TestParseCallback(t *testing.T) {
	action, id := parseCallback("buy_ok:12")
	if action != cbConfirmBuy || id != "12" {
		t.Fatalf("unexpected parse %q %q", action, id)
	}
	action, id = parseCallback(cbBack)
	if action != cbBack || id != "" {
		t.Fatalf("unexpected parse %q %q", action, id)
	}
}

func TestDifficultyMenuRoundTrip(t *testing.T) {
	kb := difficultyMenu()
	if len(kb.Keyboard) != len(model.Difficulties)+1 {
		t.Fatalf("unexpected rows %d", len(kb.Keyboard))
	}
	for i, d := range model.Difficulties {
		got, ok := difficultyFromLabel(kb.Keyboard[i][0].Text)
		if !ok || got != d {
			t.Fatalf("label %q did not map back to %q", kb.Keyboard[i][0].Text, d)
		}
	}
	if _, ok := difficultyFromLabel(btnCancelTask); ok {
		t.Fatalf("cancel button must not parse as a difficulty")
	}
}
