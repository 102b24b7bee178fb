package bot

import (
	"strings"
	"sync"

	"github.com/verte-zerg/dopabank/internal/model"
)

type dialogStep int

const (
	stepNone dialogStep = iota
	stepAddName
	stepAddCost
	stepEditName
	stepEditCost
)

const skipWord = "skip"

// dialog is the multi-message reward authoring state of one user in one chat.
type dialog struct {
	step     dialogStep
	rewardID string
	name     string
	hasName  bool
}

// rewardDraft is a finished dialog. An empty rewardID means a new reward.
type rewardDraft struct {
	rewardID string
	name     *string
	cost     *int
}

const (
	promptAddName  = "Enter the name of the new reward:"
	promptAddCost  = "Now enter the cost in points (a whole number):"
	promptEditCost = `Enter the new cost in points (or "skip" to keep it):`
	promptBadName  = "The name must not be empty. Enter the reward name:"
	promptBadCost  = "The cost must be a positive whole number. Try again:"
)

func promptEditName(current string) string {
	return `Enter a new name for "` + current + `" (or "skip" to keep it):`
}

func isSkip(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), skipWord)
}

// advance consumes one reply. It returns the next state and the prompt to
// send, or a draft once every field has been collected.
func (d dialog) advance(text string) (dialog, string, *rewardDraft) {
	text = strings.TrimSpace(text)
	switch d.step {
	case stepAddName:
		if text == "" {
			return d, promptBadName, nil
		}
		return dialog{step: stepAddCost, name: text, hasName: true}, promptAddCost, nil
	case stepAddCost:
		cost, err := model.ParseCost(text)
		if err != nil {
			return d, promptBadCost, nil
		}
		name := d.name
		return dialog{}, "", &rewardDraft{name: &name, cost: &cost}
	case stepEditName:
		next := dialog{step: stepEditCost, rewardID: d.rewardID}
		if !isSkip(text) && text != "" {
			next.name = text
			next.hasName = true
		}
		return next, promptEditCost, nil
	case stepEditCost:
		draft := &rewardDraft{rewardID: d.rewardID}
		if d.hasName {
			name := d.name
			draft.name = &name
		}
		if !isSkip(text) {
			cost, err := model.ParseCost(text)
			if err != nil {
				return d, promptBadCost, nil
			}
			draft.cost = &cost
		}
		return dialog{}, "", draft
	}
	return dialog{}, "", nil
}

type dialogKey struct {
	chatID int64
	userID int64
}

type dialogs struct {
	mu     sync.Mutex
	active map[dialogKey]dialog
}

func (s *dialogs) get(k dialogKey) (dialog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.active[k]
	return d, ok && d.step != stepNone
}

func (s *dialogs) set(k dialogKey, d dialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.step == stepNone {
		delete(s.active, k)
		return
	}
	if s.active == nil {
		s.active = map[dialogKey]dialog{}
	}
	s.active[k] = d
}

func (s *dialogs) clear(k dialogKey) {
	s.set(k, dialog{})
}
