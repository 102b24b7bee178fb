// Package stats derives aggregates from task history and renders them.
package stats

import (
	"sort"
	"time"

	"github.com/verte-zerg/dopabank/internal/model"
)

// DateLayout is the calendar-day format stored on history entries.
const DateLayout = "2006-01-02"

// DifficultyCount is one bucket of the per-difficulty breakdown.
type DifficultyCount struct {
	Difficulty model.Difficulty
	Count      int
}

// DayPoints is the total earned on one calendar day.
type DayPoints struct {
	Date   string
	Points int
	Tasks  int
}

// Summary aggregates a user's record.
type Summary struct {
	Balance        int
	TasksCompleted int
	TotalEarned    int
	TotalDuration  time.Duration
	ByDifficulty   []DifficultyCount
	TodayTasks     int
	TodayPoints    int
	Daily          []DayPoints
	Running        bool
	RunningFor     time.Duration
}

// Summarize computes a Summary for u as seen at now. now's location decides
// which day is today.
func Summarize(u *model.UserRecord, now time.Time) Summary {
	s := Summary{
		Balance:        u.Points,
		TasksCompleted: u.TasksCompleted,
	}
	for _, d := range model.Difficulties {
		s.ByDifficulty = append(s.ByDifficulty, DifficultyCount{Difficulty: d, Count: u.DifficultyStats[d]})
	}
	if u.ActiveTask != nil {
		s.Running = true
		s.RunningFor = now.Sub(u.ActiveTask.StartTime.Time)
		if s.RunningFor < 0 {
			s.RunningFor = 0
		}
	}

	today := now.Format(DateLayout)
	byDay := map[string]*DayPoints{}
	for _, e := range u.TasksHistory {
		s.TotalEarned += e.Points
		s.TotalDuration += time.Duration(e.Duration * float64(time.Second))
		if e.Date == today {
			s.TodayTasks++
			s.TodayPoints += e.Points
		}
		day, ok := byDay[e.Date]
		if !ok {
			day = &DayPoints{Date: e.Date}
			byDay[e.Date] = day
		}
		day.Points += e.Points
		day.Tasks++
	}
	s.Daily = make([]DayPoints, 0, len(byDay))
	for _, day := range byDay {
		s.Daily = append(s.Daily, *day)
	}
	sort.Slice(s.Daily, func(i, j int) bool {
		return s.Daily[i].Date < s.Daily[j].Date
	})
	return s
}

// NonZeroDifficulties drops empty buckets.
func (s Summary) NonZeroDifficulties() []DifficultyCount {
	out := make([]DifficultyCount, 0, len(s.ByDifficulty))
	for _, c := range s.ByDifficulty {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	return out
}

// DailySeries returns the per-day points as floats, oldest first.
func (s Summary) DailySeries() []float64 {
	out := make([]float64, len(s.Daily))
	for i, d := range s.Daily {
		out[i] = float64(d.Points)
	}
	return out
}
