// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Difficulty is the declared difficulty tag of a completed task.
type Difficulty string

const (
	DifficultyVeryEasy     Difficulty = "very_easy"
	DifficultyEasy         Difficulty = "easy"
	DifficultyStandard     Difficulty = "standard"
	DifficultyHigh         Difficulty = "high"
	DifficultyHard         Difficulty = "hard"
	DifficultyCatastrophic Difficulty = "catastrophic"
)

// Difficulties lists every tag from easiest to hardest.
var Difficulties = []Difficulty{
	DifficultyVeryEasy,
	DifficultyEasy,
	DifficultyStandard,
	DifficultyHigh,
	DifficultyHard,
	DifficultyCatastrophic,
}

// IsValid reports whether d is one of the six known tags.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyVeryEasy, DifficultyEasy, DifficultyStandard, DifficultyHigh, DifficultyHard, DifficultyCatastrophic:
		return true
	default:
		return false
	}
}

// Label returns a human-readable name.
func (d Difficulty) Label() string {
	switch d {
	case DifficultyVeryEasy:
		return "Very easy"
	case DifficultyEasy:
		return "Easy"
	case DifficultyStandard:
		return "Standard"
	case DifficultyHigh:
		return "Increased"
	case DifficultyHard:
		return "Hard"
	case DifficultyCatastrophic:
		return "Catastrophic"
	default:
		return string(d)
	}
}

// ParseDifficulty accepts a tag ("very_easy"), a dashed form ("very-easy")
// or a 1-based index into Difficulties ("1".."6").
func ParseDifficulty(input string) (Difficulty, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(Difficulties) {
			return Difficulties[n-1], true
		}
		return "", false
	}
	d := Difficulty(strings.ReplaceAll(s, "-", "_"))
	return d, d.IsValid()
}

// Timestamp is a point in time persisted as fractional unix seconds.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return json.Marshal(float64(t.Unix()) + float64(t.Nanosecond())/1e9)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return err
	}
	if secs == 0 {
		t.Time = time.Time{}
		return nil
	}
	whole, frac := math.Modf(secs)
	t.Time = time.Unix(int64(whole), int64(math.Round(frac*1e9)))
	return nil
}

// ActiveTask is the single in-flight timed task of a user.
type ActiveTask struct {
	StartTime Timestamp `json:"start_time"`
	// Points is informational only and never used for scoring.
	Points int `json:"points"`
}

// HistoryEntry is an immutable record of a completed task.
type HistoryEntry struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Difficulty Difficulty `json:"difficulty"`
	StartTime  Timestamp  `json:"start_time"`
	EndTime    Timestamp  `json:"end_time"`
	Duration   float64    `json:"duration"`
	Points     int        `json:"points"`
	Date       string     `json:"date"`
}

// Reward is a priced catalog item. ID is the key of the owning map and is
// not repeated in the persisted value.
type Reward struct {
	ID   string `json:"-"`
	Name string `json:"name"`
	Cost int    `json:"cost"`
}

// UserRecord is the persisted state of one user.
type UserRecord struct {
	Points          int                `json:"points"`
	TasksCompleted  int                `json:"tasks_completed"`
	DifficultyStats map[Difficulty]int `json:"difficulty_stats"`
	ActiveTask      *ActiveTask        `json:"active_task"`
	TasksHistory    []HistoryEntry     `json:"tasks_history"`
	Rewards         map[string]Reward  `json:"rewards,omitempty"`
}

// NewUserRecord returns a record with all-zero defaults.
func NewUserRecord() *UserRecord {
	u := &UserRecord{}
	u.Normalize()
	return u
}

// Normalize fills fields missing from older documents.
func (u *UserRecord) Normalize() {
	if u.DifficultyStats == nil {
		u.DifficultyStats = make(map[Difficulty]int, len(Difficulties))
	}
	for _, d := range Difficulties {
		if _, ok := u.DifficultyStats[d]; !ok {
			u.DifficultyStats[d] = 0
		}
	}
	if u.TasksHistory == nil {
		u.TasksHistory = []HistoryEntry{}
	}
}

// Clone returns a deep copy of u.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	out.DifficultyStats = make(map[Difficulty]int, len(u.DifficultyStats))
	for k, v := range u.DifficultyStats {
		out.DifficultyStats[k] = v
	}
	if u.ActiveTask != nil {
		task := *u.ActiveTask
		out.ActiveTask = &task
	}
	out.TasksHistory = append([]HistoryEntry(nil), u.TasksHistory...)
	if u.Rewards != nil {
		out.Rewards = CloneRewards(u.Rewards)
	}
	return &out
}

// CloneRewards copies a reward mapping and stamps each value with its key.
func CloneRewards(in map[string]Reward) map[string]Reward {
	out := make(map[string]Reward, len(in))
	for id, r := range in {
		r.ID = id
		out[id] = r
	}
	return out
}

// SortedRewards returns rewards ordered by numeric id.
func SortedRewards(in map[string]Reward) []Reward {
	out := make([]Reward, 0, len(in))
	for id, r := range in {
		r.ID = id
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i].ID)
		b, errB := strconv.Atoi(out[j].ID)
		if errA == nil && errB == nil && a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RewardScope selects who owns the reward catalog.
type RewardScope string

const (
	// ScopeGlobal shares one catalog between every user.
	ScopeGlobal RewardScope = "global"
	// ScopePerUser gives each user a private catalog.
	ScopePerUser RewardScope = "per-user"
)

// ParseRewardScope validates a configured scope name.
func ParseRewardScope(s string) (RewardScope, bool) {
	switch RewardScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGlobal:
		return ScopeGlobal, true
	case ScopePerUser, "per_user", "peruser", "user":
		return ScopePerUser, true
	default:
		return "", false
	}
}
