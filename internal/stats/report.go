package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/verte-zerg/dopabank/internal/model"
)

// averageWindow is the number of days the smoothed curve averages over.
const averageWindow = 7

// RenderSummary prints balance, completion counts and the daily curve.
func RenderSummary(w io.Writer, s Summary, sparkWidth int) error {
	lines := []string{
		"Summary",
		fmt.Sprintf("Balance: %d points", s.Balance),
		fmt.Sprintf("Tasks completed: %d", s.TasksCompleted),
		fmt.Sprintf("Points earned: %d", s.TotalEarned),
		fmt.Sprintf("Time tracked: %s", FormatClock(s.TotalDuration)),
		fmt.Sprintf("Today: %d tasks, %d points", s.TodayTasks, s.TodayPoints),
	}
	if s.Running {
		lines = append(lines, fmt.Sprintf("Active task: running for %s", FormatClock(s.RunningFor)))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}

	counts := s.NonZeroDifficulties()
	if len(counts) > 0 {
		rows := make([][]string, 0, len(counts))
		for _, c := range counts {
			rows = append(rows, []string{c.Difficulty.Label(), fmt.Sprintf("%d", c.Count)})
		}
		if err := writeLines(w, formatTable([]string{"Difficulty", "Tasks"}, rows, map[int]bool{1: true})); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, ""); err != nil {
			return err
		}
	}

	if len(s.Daily) > 1 {
		daily := s.DailySeries()
		series := TailValues(daily, sparkWidth)
		smooth := TailValues(MovingAverage(daily, averageWindow), sparkWidth)
		first := s.Daily[len(s.Daily)-len(series)].Date
		last := s.Daily[len(s.Daily)-1].Date
		if _, err := fmt.Fprintf(w, "Points per day (%s .. %s)\n[%s]\n%d-day average: %.1f\n[%s]\n\n",
			first, last, Sparkline(series), averageWindow, smooth[len(smooth)-1], Sparkline(smooth)); err != nil {
			return err
		}
	}
	return nil
}

// RenderHistory prints completed tasks in the given order.
func RenderHistory(w io.Writer, title string, entries []model.HistoryEntry, loc *time.Location) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No completed tasks.")
		return err
	}
	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.ID),
			e.EndTime.In(loc).Format("2006-01-02 15:04"),
			e.Name,
			e.Difficulty.Label(),
			FormatClock(time.Duration(e.Duration * float64(time.Second))),
			fmt.Sprintf("%d", e.Points),
		})
	}
	headers := []string{"#", "Finished", "Task", "Difficulty", "Time", "Points"}
	return writeLines(w, formatTable(headers, rows, map[int]bool{0: true, 5: true}))
}

// RenderRewards prints the catalog and marks what balance can afford.
func RenderRewards(w io.Writer, rewards []model.Reward, balance int) error {
	if len(rewards) == 0 {
		_, err := fmt.Fprintln(w, "No rewards yet.")
		return err
	}
	rows := make([][]string, 0, len(rewards))
	for _, r := range rewards {
		mark := "no"
		if balance >= r.Cost {
			mark = "yes"
		}
		rows = append(rows, []string{r.ID, r.Name, fmt.Sprintf("%d", r.Cost), mark})
	}
	if err := writeLines(w, formatTable([]string{"ID", "Reward", "Cost", "Affordable"}, rows, map[int]bool{0: true, 2: true})); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nBalance: %d points\n", balance)
	return err
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
