package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/store"
)

// RewardPatch lists the fields to change on an existing reward. Nil fields
// are left alone; an empty name counts as not provided.
type RewardPatch struct {
	Name *string
	Cost *int
}

// catalog abstracts where rewards live: one shared mapping, or a mapping
// inside each user record.
type catalog interface {
	list(ctx context.Context, userID string) (map[string]model.Reward, error)
	mutate(ctx context.Context, userID string, fn func(map[string]model.Reward) error) error
	// lookup runs inside the user's store update.
	lookup(u *model.UserRecord, rewardID string) (model.Reward, bool)
}

type globalCatalog struct {
	store *store.Store
}

func (c globalCatalog) list(_ context.Context, _ string) (map[string]model.Reward, error) {
	return c.store.Catalog(), nil
}

func (c globalCatalog) mutate(ctx context.Context, _ string, fn func(map[string]model.Reward) error) error {
	return c.store.UpdateCatalog(ctx, fn)
}

func (c globalCatalog) lookup(_ *model.UserRecord, rewardID string) (model.Reward, bool) {
	r, ok := c.store.Catalog()[rewardID]
	return r, ok
}

type userCatalog struct {
	store *store.Store
}

func (c userCatalog) list(ctx context.Context, userID string) (map[string]model.Reward, error) {
	u, err := c.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return model.CloneRewards(u.Rewards), nil
}

func (c userCatalog) mutate(ctx context.Context, userID string, fn func(map[string]model.Reward) error) error {
	return c.store.Update(ctx, userID, func(u *model.UserRecord) error {
		if u.Rewards == nil {
			u.Rewards = map[string]model.Reward{}
		}
		return fn(u.Rewards)
	})
}

func (c userCatalog) lookup(u *model.UserRecord, rewardID string) (model.Reward, bool) {
	r, ok := u.Rewards[rewardID]
	if ok {
		r.ID = rewardID
	}
	return r, ok
}

// nextRewardID is one more than the largest numeric id in rewards. Ids
// are unique within a catalog at any moment but not over time: deleting
// the highest id lets the next AddReward hand it out again.
func nextRewardID(rewards map[string]model.Reward) string {
	highest := 0
	for id := range rewards {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

// ListRewards returns the user's visible catalog ordered by id. In global
// scope userID is ignored.
func (e *Engine) ListRewards(ctx context.Context, userID string) ([]model.Reward, error) {
	rewards, err := e.catalog.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	return model.SortedRewards(rewards), nil
}

// Reward returns a single reward.
func (e *Engine) Reward(ctx context.Context, userID, rewardID string) (model.Reward, error) {
	rewards, err := e.catalog.list(ctx, userID)
	if err != nil {
		return model.Reward{}, err
	}
	r, ok := rewards[rewardID]
	if !ok {
		return model.Reward{}, ErrRewardNotFound
	}
	return r, nil
}

// AddReward creates a reward and returns its id. Cost validation belongs
// to the caller.
func (e *Engine) AddReward(ctx context.Context, userID, name string, cost int) (string, error) {
	var id string
	err := e.catalog.mutate(ctx, userID, func(rewards map[string]model.Reward) error {
		id = nextRewardID(rewards)
		rewards[id] = model.Reward{ID: id, Name: strings.TrimSpace(name), Cost: cost}
		return nil
	})
	return id, err
}

// UpdateReward applies patch and reports whether the reward existed.
func (e *Engine) UpdateReward(ctx context.Context, userID, rewardID string, patch RewardPatch) (bool, error) {
	found := false
	err := e.catalog.mutate(ctx, userID, func(rewards map[string]model.Reward) error {
		r, ok := rewards[rewardID]
		if !ok {
			return store.ErrSkipWrite
		}
		found = true
		if patch.Name != nil {
			if name := strings.TrimSpace(*patch.Name); name != "" {
				r.Name = name
			}
		}
		if patch.Cost != nil {
			r.Cost = *patch.Cost
		}
		rewards[rewardID] = r
		return nil
	})
	return found, err
}

// DeleteReward removes a reward and reports whether it existed.
func (e *Engine) DeleteReward(ctx context.Context, userID, rewardID string) (bool, error) {
	found := false
	err := e.catalog.mutate(ctx, userID, func(rewards map[string]model.Reward) error {
		if _, ok := rewards[rewardID]; !ok {
			return store.ErrSkipWrite
		}
		delete(rewards, rewardID)
		found = true
		return nil
	})
	return found, err
}
