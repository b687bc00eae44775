// Package scheduler plays recordings on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"macrorec/internal/config"
	"macrorec/internal/engine"
	"macrorec/internal/logging"
	"macrorec/internal/macro"
)

var (
	// ErrUnknownEntry is returned by Trigger for names never added.
	ErrUnknownEntry = errors.New("unknown schedule entry")

	// ErrDuplicateEntry is returned by Add when the name is taken.
	ErrDuplicateEntry = errors.New("duplicate schedule entry")
)

// Player is the playback surface a schedule drives.
type Player interface {
	Load(events []macro.Event) error
	Play(ctx context.Context, repeat int, interval time.Duration) error
	Wait(ctx context.Context) error
	IsPlaying() bool
	IsRecording() bool
}

// Resolver loads the events a schedule entry's recording names.
type Resolver func(ctx context.Context, ref string) ([]macro.Event, error)

// Options configures a Scheduler.
type Options struct {
	// Location for cron expressions; nil means local time.
	Location *time.Location
	Logger   *slog.Logger
}

// Entry describes a scheduled playback.
type Entry struct {
	config.ScheduleEntry
	Next time.Time
	Prev time.Time
}

// Scheduler runs ScheduleEntry playbacks.
type Scheduler struct {
	cron    *cron.Cron
	player  Player
	resolve Resolver
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]scheduled

	runs    atomic.Uint64
	skipped atomic.Uint64
}

type scheduled struct {
	entry config.ScheduleEntry
	id    cron.EntryID
	job   cron.Job
}

// New creates a scheduler. Jobs of one entry never overlap.
func New(player Player, resolve Resolver, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default().WithComponent("scheduler")
	}
	logger := cronLogger{opts.Logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithParser(config.CronParser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		player:  player,
		resolve: resolve,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]scheduled),
	}
}

// Add schedules an entry.
func (s *Scheduler) Add(e config.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
	}
	job := cron.FuncJob(func() { s.run(e) })
	id, err := s.cron.AddJob(e.Cron, job)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", e.Name, err)
	}
	s.entries[e.Name] = scheduled{entry: e, id: id, job: job}
	s.log.Info("playback scheduled", "name", e.Name, "cron", e.Cron, "recording", e.Recording)
	return nil
}

// Replace swaps every entry for entries, as after a config reload. On
// error the entries added so far stay scheduled.
func (s *Scheduler) Replace(entries []config.ScheduleEntry) error {
	s.mu.Lock()
	for name, sc := range s.entries {
		s.cron.Remove(sc.id)
		delete(s.entries, name)
	}
	s.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start begins running entries on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "entries", len(s.Entries()))
}

// Stop cancels running playbacks and waits for their jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped", "runs", s.runs.Load(), "skipped", s.skipped.Load())
}

// Entries returns the scheduled entries sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, sc := range s.entries {
		ce := s.cron.Entry(sc.id)
		out = append(out, Entry{ScheduleEntry: sc.entry, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger runs the named entry now, on the calling goroutine.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	sc, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	sc.job.Run()
	return nil
}

// Runs returns how many playbacks schedules started.
func (s *Scheduler) Runs() uint64 { return s.runs.Load() }

// Skipped returns how many runs were skipped because the player was busy
// or the recording could not be loaded.
func (s *Scheduler) Skipped() uint64 { return s.skipped.Load() }

func (s *Scheduler) run(e config.ScheduleEntry) {
	log := s.log.With("name", e.Name)
	if s.ctx.Err() != nil {
		return
	}
	if s.player.IsPlaying() || s.player.IsRecording() {
		s.skipped.Add(1)
		log.Warn("scheduled playback skipped: player busy")
		return
	}

	events, err := s.resolve(s.ctx, e.Recording)
	if err != nil {
		s.skipped.Add(1)
		log.Error("scheduled playback skipped: load recording", "recording", e.Recording, "error", err)
		return
	}
	if err := s.player.Load(events); err != nil {
		s.skipped.Add(1)
		log.Warn("scheduled playback skipped", "error", err)
		return
	}
	if err := s.player.Play(s.ctx, e.Repeat, e.Interval()); err != nil {
		s.skipped.Add(1)
		if errors.Is(err, engine.ErrInvalidState) {
			log.Warn("scheduled playback skipped", "error", err)
		} else {
			log.Error("scheduled playback failed", "error", err)
		}
		return
	}

	s.runs.Add(1)
	log.Info("scheduled playback started", "events", len(events), "repeat", e.Repeat)
	if err := s.player.Wait(s.ctx); err != nil {
		log.Debug("scheduled playback wait ended", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
