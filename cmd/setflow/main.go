// Package main provides the setflow CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/hayase/setflow/internal/app/cue"
	"github.com/hayase/setflow/internal/app/runner"
	"github.com/hayase/setflow/internal/app/runtime"
	"github.com/hayase/setflow/internal/app/snapshot"
	"github.com/hayase/setflow/internal/domain/session"
	"github.com/hayase/setflow/internal/domain/template"
	"github.com/hayase/setflow/internal/infra/config"
	"github.com/hayase/setflow/internal/infra/logger"
	"github.com/hayase/setflow/internal/infra/store"
)

var (
	app        = kingpin.New("setflow", "Guided interval-timer session runner")
	configPath = app.Flag("config", "Path to config file").Default("config/setflow.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	runCmd        = app.Command("run", "Run a session from a template")
	runTemplateID = runCmd.Arg("template-id", "Template to run").Required().String()

	resumeCmd = app.Command("resume", "Resume the suspended session, if any")

	discardCmd = app.Command("discard", "Discard the suspended session")
	discardYes = discardCmd.Flag("yes", "Confirm the discard").Bool()

	tplCmd = app.Command("template", "Manage templates")

	tplAddCmd      = tplCmd.Command("add", "Add or replace a template")
	tplAddID       = tplAddCmd.Flag("id", "Template id (generated when omitted)").String()
	tplAddName     = tplAddCmd.Flag("name", "Display name").String()
	tplAddSets     = tplAddCmd.Flag("sets", "Number of sets").Default("1").Int()
	tplAddCooldown = tplAddCmd.Flag("cooldown", "Cooldown seconds after each exercise").Default("0").Int()
	tplAddExercise = tplAddCmd.Flag("exercise", "Exercise as id:seconds, repeatable, in order").Required().Strings()

	tplListCmd = tplCmd.Command("list", "List templates")

	tplRemoveCmd = tplCmd.Command("remove", "Remove a template")
	tplRemoveID  = tplRemoveCmd.Arg("template-id", "Template to remove").Required().String()

	historyCmd   = app.Command("history", "List completed sessions")
	historyLimit = historyCmd.Flag("limit", "Max records to show").Default("20").Int()

	streakCmd = app.Command("streak", "Show daily streak statistics")

	settingsCmd       = app.Command("settings", "Update countdown settings")
	settingsCountdown = settingsCmd.Flag("countdown", "Enable the pre-roll countdown").Default("true").Bool()
	settingsSeconds   = settingsCmd.Flag("seconds", "Pre-roll length in seconds (1-10)").Default("3").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if err := logger.Init(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := dispatch(command, cfg); err != nil {
		zlog.Error().Msgf("%v", err)
		os.Exit(1)
	}
}

func dispatch(command string, cfg *config.Config) error {
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() { _ = st.Close() }()

	switch command {
	case runCmd.FullCommand():
		return runSession(ctx, cfg, st, *runTemplateID, nil)
	case resumeCmd.FullCommand():
		return resumeSession(ctx, cfg, st)
	case discardCmd.FullCommand():
		return discardSession(ctx, st)
	case tplAddCmd.FullCommand():
		return addTemplate(ctx, st)
	case tplListCmd.FullCommand():
		return listTemplates(ctx, st)
	case tplRemoveCmd.FullCommand():
		return st.DeleteTemplate(ctx, *tplRemoveID)
	case historyCmd.FullCommand():
		return showHistory(ctx, st)
	case streakCmd.FullCommand():
		return showStreak(ctx, st)
	case settingsCmd.FullCommand():
		return st.PutSettings(ctx, store.Settings{
			CountdownEnabled: *settingsCountdown,
			CountdownSeconds: *settingsSeconds,
		})
	default:
		return errors.Newf("unknown command %q", command)
	}
}

// runSession drives a session to completion, pause or stop. When snap is
// non-nil the session is restored from it instead of started fresh.
func runSession(ctx context.Context, cfg *config.Config, st *store.Store, templateID string, snap *snapshot.Snapshot) error {
	tpl, err := st.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}

	settings, err := st.GetSettings(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("failed to read settings, using config defaults")
		settings = store.Settings{
			CountdownEnabled: cfg.Countdown.IsEnabled(),
			CountdownSeconds: cfg.Countdown.Seconds,
		}
	}

	runnerCfg := runner.Config{
		TickInterval:     cfg.Runner.TickInterval(),
		CountdownEnabled: settings.CountdownEnabled,
		CountdownSeconds: settings.CountdownSeconds,
	}

	cues := cue.NewManager()
	defer cues.Close()
	cues.Subscribe(&consoleSink{})

	var r *runner.Runner
	if snap != nil {
		r, err = runner.Restore(runnerCfg, tpl, snap, st, st, cues)
	} else {
		r, err = runner.New(runnerCfg, tpl, st, st, cues)
	}
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Start(); err != nil {
		if errors.Is(err, runner.ErrSessionActive) {
			fmt.Println(cfg.Messages.SessionActive)
			return nil
		}
		return err
	}
	if r.Status() == runtime.StatusPaused && !r.State().CountingDown() {
		if err := r.Resume(); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-r.Done():
		if r.Completed() {
			fmt.Println("Session complete.")
		}
		return nil
	case <-sig:
		// Suspension path: capture remaining time and leave the snapshot
		// behind for a later resume.
		if err := r.Pause(); err != nil &&
			!errors.Is(err, runtime.ErrNotRunning) && !errors.Is(err, runtime.ErrCountingDown) {
			return err
		}
		fmt.Println("Session paused. Run `setflow resume` to pick it up.")
		return nil
	}
}

func resumeSession(ctx context.Context, cfg *config.Config, st *store.Store) error {
	payload, err := st.GetSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println(cfg.Messages.NoSession)
			return nil
		}
		return err
	}

	snap, err := snapshot.Decode(payload, time.Now().UnixMilli())
	if err != nil {
		// Expired or corrupt: either way the slot is unrecoverable.
		if err := st.ClearSnapshot(ctx); err != nil {
			zlog.Warn().Err(err).Msg("failed to clear unrecoverable snapshot")
		}
		if errors.Is(err, snapshot.ErrExpired) {
			fmt.Println(cfg.Messages.SessionExpired)
			return nil
		}
		fmt.Println(cfg.Messages.NoSession)
		zlog.Debug().Err(err).Msg("snapshot rejected")
		return nil
	}

	return runSession(ctx, cfg, st, snap.TemplateID, snap)
}

func discardSession(ctx context.Context, st *store.Store) error {
	if !*discardYes {
		return errors.New("discard is destructive; re-run with --yes to confirm")
	}
	return st.ClearSnapshot(ctx)
}

func addTemplate(ctx context.Context, st *store.Store) error {
	id := *tplAddID
	if id == "" {
		id = uuid.New().String()
	}
	tpl := template.Template{
		ID:              id,
		Name:            *tplAddName,
		SetsCount:       *tplAddSets,
		CooldownSeconds: *tplAddCooldown,
	}
	for _, arg := range *tplAddExercise {
		exID, secs, ok := strings.Cut(arg, ":")
		if !ok {
			return errors.Newf("exercise %q must be id:seconds", arg)
		}
		dur, err := strconv.Atoi(secs)
		if err != nil {
			return errors.Wrapf(err, "exercise %q duration", arg)
		}
		tpl.Exercises = append(tpl.Exercises, template.Exercise{ExerciseID: exID, DurationSeconds: dur})
	}
	if err := st.PutTemplate(ctx, tpl); err != nil {
		return err
	}
	fmt.Printf("Template %s saved (%d exercises, %d sets, %ds cooldown)\n",
		tpl.ID, len(tpl.Exercises), tpl.SetsCount, tpl.CooldownSeconds)
	return nil
}

func listTemplates(ctx context.Context, st *store.Store) error {
	tpls, err := st.ListTemplates(ctx)
	if err != nil {
		return err
	}
	if len(tpls) == 0 {
		fmt.Println("No templates.")
		return nil
	}
	for _, tpl := range tpls {
		var parts []string
		for _, ex := range tpl.Exercises {
			parts = append(parts, fmt.Sprintf("%s %ds", ex.ExerciseID, ex.DurationSeconds))
		}
		fmt.Printf("%s  %s  [%s] x%d sets, %ds cooldown\n",
			tpl.ID, tpl.Name, strings.Join(parts, ", "), tpl.SetsCount, tpl.CooldownSeconds)
	}
	return nil
}

func showHistory(ctx context.Context, st *store.Store) error {
	records, err := st.ListRecords(ctx, *historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No completed sessions.")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  template=%s  %s (%s)\n",
			rec.CompletedAt.Local().Format("2006-01-02 15:04"),
			rec.TemplateID,
			rec.Duration().Round(time.Second),
			rec.ID[:8])
	}
	return nil
}

func showStreak(ctx context.Context, st *store.Store) error {
	records, err := st.ListRecords(ctx, 0)
	if err != nil {
		return err
	}
	s := session.ComputeStreaks(records, time.Now())
	fmt.Printf("Current streak: %d day(s)\nLongest streak: %d day(s)\n", s.Current, s.Longest)
	return nil
}

// consoleSink prints cue events to stdout.
type consoleSink struct{}

func (c *consoleSink) Notify(e cue.Event) error {
	switch e.Type {
	case cue.EventCountdownTick:
		fmt.Printf("  starting in %d...\n", e.RemainingSeconds)
	case cue.EventExerciseStarted:
		fmt.Printf("▶ %s %ds (set %d, exercise %d)\n",
			e.ExerciseID, e.RemainingSeconds, e.SetIndex+1, e.ExerciseIndex+1)
	case cue.EventCooldownStarted:
		fmt.Printf("… cooldown %ds\n", e.RemainingSeconds)
	case cue.EventStateChanged:
		fmt.Printf("⏸ paused with %ds remaining\n", e.RemainingSeconds)
	case cue.EventSessionCompleted:
		fmt.Println("✔ all sets done")
	case cue.EventSessionStopped:
		fmt.Println("✖ session discarded")
	}
	return nil
}
