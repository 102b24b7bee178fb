// Package store owns the user records and the global reward catalog: an
// in-memory mirror, guarded by locks, of documents kept in a Backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/verte-zerg/dopabank/internal/model"
)

// ErrSkipWrite may be returned by an Update callback to leave the record
// untouched and skip persistence. Update then returns nil.
var ErrSkipWrite = errors.New("skip write")

// Store is the single owner of every UserRecord.
//
// Each user has its own mutex, so read-modify-write sequences for one user
// are serialized while different users proceed in parallel. Records in the
// map are never mutated in place: updates work on a clone that replaces the
// stored pointer, which lets the whole mapping be encoded under mu.
type Store struct {
	backend Backend
	scope   model.RewardScope

	mu    sync.Mutex
	users map[string]*model.UserRecord

	catMu   sync.Mutex
	catalog map[string]model.Reward

	locks userLocks
}

// Open loads every document from b. In per-user scope a legacy global
// catalog found in b is copied into users with no rewards and archived.
func Open(ctx context.Context, b Backend, scope model.RewardScope) (*Store, error) {
	if scope == "" {
		scope = model.ScopePerUser
	}
	users, existed, err := b.LoadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, u := range users {
		u.Normalize()
		if scope == model.ScopePerUser && u.Rewards == nil {
			u.Rewards = map[string]model.Reward{}
		}
	}
	s := &Store{
		backend: b,
		scope:   scope,
		users:   users,
		catalog: map[string]model.Reward{},
	}
	if !existed {
		if err := s.persistUsersLocked(ctx); err != nil {
			return nil, err
		}
	}

	switch scope {
	case model.ScopeGlobal:
		catalog, _, err := b.LoadRewards(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load rewards: %w", err)
		}
		s.catalog = catalog
	case model.ScopePerUser:
		if err := s.migrateLegacyRewards(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown reward scope %q", scope)
	}
	return s, nil
}

// Scope reports the configured reward scope.
func (s *Store) Scope() model.RewardScope { return s.scope }

// Location describes the backing storage.
func (s *Store) Location() string { return s.backend.Location() }

// Close releases the backend. Every mutation is already persisted.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get returns a copy of the record for userID, if it exists.
func (s *Store) Get(userID string) (*model.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// GetOrCreate returns a copy of the record for userID, creating and
// persisting a default record on first access.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*model.UserRecord, error) {
	var out *model.UserRecord
	err := s.Update(ctx, userID, func(u *model.UserRecord) error {
		out = u.Clone()
		return ErrSkipWrite
	})
	return out, err
}

// Update runs fn on a working copy of the user's record while holding that
// user's lock, then installs the copy and rewrites the user document.
//
// If fn fails, the stored record is left as it was, except that a record
// created by this call is still kept. A *PersistError means the new state
// is live in memory but not on disk.
func (s *Store) Update(ctx context.Context, userID string, fn func(*model.UserRecord) error) error {
	unlock := s.locks.lock(userID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	current, exists := s.users[userID]
	s.mu.Unlock()
	if !exists {
		current = s.newRecord()
	}

	work := current.Clone()
	fnErr := fn(work)
	switch {
	case fnErr == nil:
	case errors.Is(fnErr, ErrSkipWrite):
		fnErr = nil
		if exists {
			return nil
		}
		work = current
	default:
		if exists {
			return fnErr
		}
		work = current
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = work
	if err := s.persistUsersLocked(ctx); err != nil {
		return err
	}
	return fnErr
}

// Catalog returns a copy of the global reward catalog.
func (s *Store) Catalog() map[string]model.Reward {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	return model.CloneRewards(s.catalog)
}

// UpdateCatalog runs fn on a copy of the global catalog and, unless fn
// fails or returns ErrSkipWrite, installs and persists it.
func (s *Store) UpdateCatalog(ctx context.Context, fn func(map[string]model.Reward) error) error {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := model.CloneRewards(s.catalog)
	if err := fn(work); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		return err
	}
	s.catalog = work
	if err := s.backend.SaveRewards(ctx, work); err != nil {
		return &PersistError{Op: "rewards", Path: s.backend.Location(), Err: err}
	}
	return nil
}

func (s *Store) newRecord() *model.UserRecord {
	u := model.NewUserRecord()
	if s.scope == model.ScopePerUser {
		u.Rewards = map[string]model.Reward{}
	}
	return u
}

func (s *Store) persistUsersLocked(ctx context.Context) error {
	if err := s.backend.SaveUsers(ctx, s.users); err != nil {
		return &PersistError{Op: "users", Path: s.backend.Location(), Err: err}
	}
	return nil
}

type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
