package engine

import (
	"context"
	"fmt"

	"github.com/verte-zerg/dopabank/internal/model"
)

// Receipt confirms a purchase.
type Receipt struct {
	Reward  model.Reward
	Balance int
	Message string
}

// applyEarned credits points and counts the completion in one step.
func applyEarned(u *model.UserRecord, points int, d model.Difficulty) {
	u.Points += points
	u.TasksCompleted++
	u.DifficultyStats[d]++
}

// PurchaseReward debits the reward's cost from the user's balance. The
// lookup, balance check and debit run under the user's lock, so no other
// purchase or award for the same user can interleave.
//
// ErrRewardNotFound and ErrInsufficientPoints leave the balance unchanged.
func (e *Engine) PurchaseReward(ctx context.Context, userID, rewardID string) (Receipt, error) {
	var rc Receipt
	err := e.store.Update(ctx, userID, func(u *model.UserRecord) error {
		reward, ok := e.catalog.lookup(u, rewardID)
		if !ok {
			return ErrRewardNotFound
		}
		if u.Points < reward.Cost {
			return ErrInsufficientPoints
		}
		u.Points -= reward.Cost
		rc = Receipt{
			Reward:  reward,
			Balance: u.Points,
			Message: fmt.Sprintf("You bought %s for %d points", reward.Name, reward.Cost),
		}
		return nil
	})
	return rc, err
}

// Admin carries operations reserved for trusted callers. Front-ends decide
// who may obtain one; the engine does not check.
type Admin struct {
	e *Engine
}

// Admin returns the trusted-caller handle.
func (e *Engine) Admin() *Admin {
	return &Admin{e: e}
}

// SetBalance overwrites the user's balance and returns the stored value.
func (a *Admin) SetBalance(ctx context.Context, userID string, points int) (int, error) {
	var out int
	err := a.e.store.Update(ctx, userID, func(u *model.UserRecord) error {
		u.Points = points
		out = u.Points
		return nil
	})
	return out, err
}
