// Package main provides the CLI entrypoint for dopabank.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/dopabank/internal/access"
	"github.com/verte-zerg/dopabank/internal/bot"
	"github.com/verte-zerg/dopabank/internal/config"
	"github.com/verte-zerg/dopabank/internal/engine"
	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/stats"
	"github.com/verte-zerg/dopabank/internal/store"
	"github.com/verte-zerg/dopabank/internal/tui"
)

const (
	defaultBackend      = "json"
	defaultHistoryLimit = 20
	defaultSparkWidth   = 40
)

var (
	globalUser     string
	globalBackend  string
	globalPath     string
	globalScope    string
	globalTimezone string

	endDifficulty string
	endName       string

	historyLimit int

	editName string
	editCost int

	deleteYes bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dopabank",
		Short:         "Earn points for timed tasks and spend them on rewards",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runBoardCmd,
	}

	rootCmd.PersistentFlags().StringVar(&globalUser, "user", defaultUserID(), "user id to act as")
	rootCmd.PersistentFlags().StringVar(&globalBackend, "backend", defaultBackend, "storage backend (json or sqlite)")
	rootCmd.PersistentFlags().StringVar(&globalPath, "data", "", "data directory (json) or database file (sqlite)")
	rootCmd.PersistentFlags().StringVar(&globalScope, "scope", string(model.ScopePerUser), "reward scope (global or per-user)")
	rootCmd.PersistentFlags().StringVar(&globalTimezone, "timezone", "Local", "timezone for history dates")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newEndCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTodayCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newRewardsCmd())
	rootCmd.AddCommand(newBalanceCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

func defaultUserID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// app bundles what every command needs once the config is resolved.
type app struct {
	cfg    config.FileConfig
	store  *store.Store
	engine *engine.Engine
}

func (r *app) close() {
	if err := r.store.Close(); err != nil {
		logErrf("failed to close store: %v\n", err)
	}
}

func (r *app) allowAll() bool {
	return r.cfg.Access.AllowAll != nil && *r.cfg.Access.AllowAll
}

// cliPolicy trusts the OS account running the CLI in addition to the
// configured admins. Acting as another id via --user does not inherit that.
func (r *app) cliPolicy() access.Policy {
	admins := make([]string, 0, len(r.cfg.Access.Admins)+1)
	admins = append(admins, r.cfg.Access.Admins...)
	admins = append(admins, defaultUserID())
	return access.NewPolicy(admins, r.allowAll())
}

func (r *app) requireAuthor() error {
	if !r.cliPolicy().CanAuthorRewards(globalUser, r.engine.Scope()) {
		return fmt.Errorf("%s may not change the shared reward catalog", globalUser)
	}
	return nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "backend", &globalBackend, fileCfg.Storage.Backend)
	applyStringConfig(cmd, "data", &globalPath, fileCfg.Storage.Path)
	applyStringConfig(cmd, "scope", &globalScope, fileCfg.Rewards.Scope)
	applyStringConfig(cmd, "timezone", &globalTimezone, fileCfg.Clock.Timezone)

	if err := validateGlobals(); err != nil {
		return nil, err
	}
	scope, _ := model.ParseRewardScope(globalScope)
	loc, err := config.LoadLocation(globalTimezone)
	if err != nil {
		return nil, err
	}
	path := globalPath
	if path == "" {
		path = config.DefaultStoragePath(globalBackend)
	}

	backend, err := store.OpenBackend(globalBackend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	st, err := store.Open(cmd.Context(), backend, scope)
	if err != nil {
		if cerr := backend.Close(); cerr != nil {
			logErrf("failed to close storage: %v\n", cerr)
		}
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	eng := engine.New(st, engine.Options{Location: loc})
	return &app{cfg: fileCfg, store: st, engine: eng}, nil
}

func validateGlobals() error {
	if strings.TrimSpace(globalUser) == "" {
		return fmt.Errorf("--user must not be empty")
	}
	if err := config.ValidateBackend(globalBackend); err != nil {
		return fmt.Errorf("--backend: %w", err)
	}
	if _, ok := model.ParseRewardScope(globalScope); !ok {
		return fmt.Errorf("--scope must be global or per-user")
	}
	return nil
}

// withApp opens the store for the duration of fn.
func withApp(fn func(cmd *cobra.Command, rt *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer rt.close()
		return fn(cmd, rt, args)
	}
}

func runBoardCmd(cmd *cobra.Command, args []string) error {
	return withApp(func(_ *cobra.Command, rt *app, _ []string) error {
		canAuthor := rt.cliPolicy().CanAuthorRewards(globalUser, rt.engine.Scope())
		board := tui.NewModel(rt.engine, globalUser, canAuthor)
		program := tea.NewProgram(board, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	})(cmd, args)
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the task timer",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			res, err := rt.engine.StartTask(cmd.Context(), globalUser)
			if err != nil {
				return err
			}
			if !res.Started {
				return printf(cmd, "A task is already running (%s elapsed).\n", stats.FormatClock(res.Elapsed))
			}
			return printf(cmd, "Timer started at %s.\n", res.StartTime.In(rt.engine.Location()).Format("15:04:05"))
		}),
	}
}

func newEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end",
		Short: "Finish the running task and collect points",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			d, ok := model.ParseDifficulty(endDifficulty)
			if !ok {
				return fmt.Errorf("--difficulty must be one of %s (or 1-%d)", difficultyNames(), len(model.Difficulties))
			}
			c, err := rt.engine.EndTask(cmd.Context(), globalUser, d, endName)
			if err != nil {
				return err
			}
			if c == nil {
				return engine.ErrNoActiveTask
			}
			return printf(cmd, "Task complete: %s\nTime: %s\nBase points: %.1f\nDifficulty: %s (x%.1f)\nPoints earned: %d\nBalance: %d points\n",
				c.Entry.Name,
				stats.FormatClock(c.Elapsed),
				c.Score.BasePoints,
				c.Entry.Difficulty.Label(),
				c.Score.Multiplier,
				c.Score.FinalPoints,
				c.Balance,
			)
		}),
	}
	cmd.Flags().StringVarP(&endDifficulty, "difficulty", "d", string(model.DifficultyStandard), "task difficulty")
	cmd.Flags().StringVarP(&endName, "name", "n", "", "task name")
	return cmd
}

func difficultyNames() string {
	names := make([]string, 0, len(model.Difficulties))
	for _, d := range model.Difficulties {
		names = append(names, string(d))
	}
	return strings.Join(names, ", ")
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Discard the running task without points",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			canceled, err := rt.engine.CancelTask(cmd.Context(), globalUser)
			if err != nil {
				return err
			}
			if !canceled {
				return engine.ErrNoActiveTask
			}
			return printf(cmd, "Task canceled.\n")
		}),
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show balance and the running task",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			u, err := rt.engine.User(cmd.Context(), globalUser)
			if err != nil {
				return err
			}
			if err := printf(cmd, "Balance: %d points\nTasks completed: %d\n", u.Points, u.TasksCompleted); err != nil {
				return err
			}
			elapsed, running, err := rt.engine.ActiveElapsed(cmd.Context(), globalUser)
			if err != nil {
				return err
			}
			if !running {
				return printf(cmd, "No active task.\n")
			}
			return printf(cmd, "Active task: %s\n", stats.FormatClock(elapsed))
		}),
	}
}

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List tasks completed today",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			entries, err := rt.engine.TodayTasks(cmd.Context(), globalUser)
			if err != nil {
				return err
			}
			return stats.RenderHistory(cmd.OutOrStdout(), "Today", entries, rt.engine.Location())
		}),
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently completed tasks",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			if historyLimit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			entries, err := rt.engine.History(cmd.Context(), globalUser, historyLimit)
			if err != nil {
				return err
			}
			return stats.RenderHistory(cmd.OutOrStdout(), "", entries, rt.engine.Location())
		}),
	}
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "number of entries (0 for all)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			s, err := rt.engine.Stats(cmd.Context(), globalUser)
			if err != nil {
				return err
			}
			return stats.RenderSummary(cmd.OutOrStdout(), s, sparkWidth())
		}),
	}
}

func sparkWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultSparkWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 10 {
		return defaultSparkWidth
	}
	return width - 2
}

func newRewardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewards",
		Short: "Browse, author and buy rewards",
		Args:  cobra.NoArgs,
		RunE:  withApp(runRewardsList),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List rewards",
		Args:  cobra.NoArgs,
		RunE:  withApp(runRewardsList),
	}

	addCmd := &cobra.Command{
		Use:   "add <name> <cost>",
		Short: "Add a reward",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, rt *app, args []string) error {
			if err := rt.requireAuthor(); err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("reward name must not be empty")
			}
			cost, err := model.ParseCost(args[1])
			if err != nil {
				return err
			}
			id, err := rt.engine.AddReward(cmd.Context(), globalUser, name, cost)
			if err != nil {
				return err
			}
			return printf(cmd, "Added reward %s: %s for %d points.\n", id, name, cost)
		}),
	}

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a reward's name or cost",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, rt *app, args []string) error {
			if err := rt.requireAuthor(); err != nil {
				return err
			}
			var patch engine.RewardPatch
			if name := strings.TrimSpace(editName); cmd.Flags().Changed("name") && name != "" {
				patch.Name = &name
			}
			if cmd.Flags().Changed("cost") {
				if editCost <= 0 {
					return model.ErrInvalidCost
				}
				patch.Cost = &editCost
			}
			if patch.Name == nil && patch.Cost == nil {
				return fmt.Errorf("nothing to change (use --name or --cost)")
			}
			found, err := rt.engine.UpdateReward(cmd.Context(), globalUser, args[0], patch)
			if err != nil {
				return err
			}
			if !found {
				return engine.ErrRewardNotFound
			}
			return printf(cmd, "Reward %s updated.\n", args[0])
		}),
	}
	editCmd.Flags().StringVar(&editName, "name", "", "new name (empty keeps the current one)")
	editCmd.Flags().IntVar(&editCost, "cost", 0, "new cost")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a reward",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, rt *app, args []string) error {
			if err := rt.requireAuthor(); err != nil {
				return err
			}
			r, err := rt.engine.Reward(cmd.Context(), globalUser, args[0])
			if err != nil {
				return err
			}
			if !deleteYes {
				ok, err := confirm(fmt.Sprintf("Delete reward %q? [y/N] ", r.Name))
				if err != nil {
					return err
				}
				if !ok {
					return printf(cmd, "Deletion canceled.\n")
				}
			}
			found, err := rt.engine.DeleteReward(cmd.Context(), globalUser, r.ID)
			if err != nil {
				return err
			}
			if !found {
				return engine.ErrRewardNotFound
			}
			return printf(cmd, "Deleted %s.\n", r.Name)
		}),
	}
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")

	buyCmd := &cobra.Command{
		Use:   "buy <id>",
		Short: "Spend points on a reward",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, rt *app, args []string) error {
			rc, err := rt.engine.PurchaseReward(cmd.Context(), globalUser, args[0])
			if errors.Is(err, engine.ErrInsufficientPoints) {
				return fmt.Errorf("%w (balance unchanged)", err)
			}
			if err != nil {
				return err
			}
			return printf(cmd, "%s. Balance: %d points\n", rc.Message, rc.Balance)
		}),
	}

	cmd.AddCommand(listCmd, addCmd, editCmd, deleteCmd, buyCmd)
	return cmd
}

func runRewardsList(cmd *cobra.Command, rt *app, _ []string) error {
	rewards, err := rt.engine.ListRewards(cmd.Context(), globalUser)
	if err != nil {
		return err
	}
	u, err := rt.engine.User(cmd.Context(), globalUser)
	if err != nil {
		return err
	}
	return stats.RenderRewards(cmd.OutOrStdout(), rewards, u.Points)
}

func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to delete without confirmation (use --yes)")
	}
	logErrf("%s", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Administrative balance operations",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <user> <points>",
		Short: "Overwrite a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, rt *app, args []string) error {
			if !rt.cliPolicy().CanSetBalance(globalUser) {
				return fmt.Errorf("%s may not set balances (add it to [access] admins)", globalUser)
			}
			points, err := model.ParseBalance(args[1])
			if err != nil {
				return err
			}
			stored, err := rt.engine.Admin().SetBalance(cmd.Context(), args[0], points)
			if err != nil {
				return err
			}
			return printf(cmd, "Balance of %s is now %d points.\n", args[0], stored)
		}),
	})
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, rt *app, _ []string) error {
			token := rt.cfg.TelegramToken()
			if token == "" {
				return fmt.Errorf("telegram token missing: set %s or [telegram] token", config.TokenEnv)
			}
			api, err := tgbotapi.NewBotAPI(token)
			if err != nil {
				return fmt.Errorf("failed to connect to telegram: %w", err)
			}
			if rt.cfg.Telegram.Debug != nil {
				api.Debug = *rt.cfg.Telegram.Debug
			}

			policy := access.NewPolicy(rt.cfg.Access.Admins, rt.allowAll())
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("store", rt.store.Location())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bot.New(api, rt.engine, policy, logger).Run(ctx, api)
		}),
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# dopabank configuration
# Uncomment a value to enable it. CLI flags override config values.

[storage]
# backend = %q            # json or sqlite
# path = %q

[rewards]
# scope = %q          # global (shared catalog) or per-user

[clock]
# timezone = "Local"          # IANA name used for history dates

[access]
# admins = []                 # user ids allowed to set balances and edit the global catalog
# allow-all = false           # treat every bot user as an admin

[telegram]
# token = ""                  # or set %s
# debug = false
`,
		defaultBackend,
		config.DefaultStoragePath(defaultBackend),
		model.ScopePerUser,
		config.TokenEnv,
	)
}

func printf(cmd *cobra.Command, format string, args ...any) error {
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
