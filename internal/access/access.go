// Package access decides which callers may author rewards or edit balances.
package access

import (
	"strings"

	"github.com/verte-zerg/dopabank/internal/model"
)

// Policy lists trusted user ids. The zero value trusts nobody.
type Policy struct {
	admins   map[string]struct{}
	allowAll bool
}

// NewPolicy builds a policy from configured admin ids. allowAll makes every
// caller an admin, which suits a single-user local install.
func NewPolicy(admins []string, allowAll bool) Policy {
	p := Policy{admins: make(map[string]struct{}, len(admins)), allowAll: allowAll}
	for _, id := range admins {
		id = strings.TrimSpace(id)
		if id != "" {
			p.admins[id] = struct{}{}
		}
	}
	return p
}

// IsAdmin reports whether userID is trusted.
func (p Policy) IsAdmin(userID string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.admins[userID]
	return ok
}

// CanAuthorRewards reports whether userID may add, edit or delete rewards.
// Private catalogs belong to their owner; the shared catalog needs an admin.
func (p Policy) CanAuthorRewards(userID string, scope model.RewardScope) bool {
	if scope == model.ScopePerUser {
		return true
	}
	return p.IsAdmin(userID)
}

// CanSetBalance reports whether userID may overwrite balances.
func (p Policy) CanSetBalance(userID string) bool {
	return p.IsAdmin(userID)
}
