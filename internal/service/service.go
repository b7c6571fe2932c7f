// Package service runs periodic update checks driven by the user's settings.
//
// A Service checks the feed on a fixed interval and re-checks right away when
// the settings file changes the effective feed URL or re-enables automatic
// updates. It only reports decisions; installing releases is left to the
// notifier.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"updatesvc/internal/settings"
	"updatesvc/internal/update"
)

// DefaultInterval is the default time between scheduled checks.
const DefaultInterval = time.Hour

var (
	// ErrUpdatesDisabled is returned by RunOnce when the settings disable
	// automatic updates.
	ErrUpdatesDisabled = errors.New("automatic updates are disabled")
	// ErrDevBuild is returned by RunOnce for development builds, which have no
	// comparable version.
	ErrDevBuild = errors.New("development build, update checks skipped")
	// ErrAlreadyStarted is returned by Start on a running Service.
	ErrAlreadyStarted = errors.New("service already started")
)

// Settings is the part of settings.Store the service reads.
type Settings interface {
	Current() settings.Snapshot
	Subscribe(fn func(settings.Event)) (cancel func())
}

// Checker performs a single update check against a feed.
type Checker interface {
	CheckForUpdate(ctx context.Context, current update.Version, feedURL string) (update.Decision, error)
}

// Option configures a Service.
type Option func(*Service)

// WithInterval sets the time between scheduled checks. cron schedules have
// one-second resolution, so shorter intervals run every second.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithFeedURL sets the feed used when the settings do not name one.
func WithFeedURL(url string) Option {
	return func(s *Service) {
		if url = strings.TrimSpace(url); url != "" {
			s.feedURL = url
		}
	}
}

// WithCurrentVersion sets the version of the running program.
func WithCurrentVersion(v string) Option {
	return func(s *Service) {
		s.currentVersion = v
	}
}

// WithCheckOnStart controls whether Start runs a check immediately.
func WithCheckOnStart(enabled bool) Option {
	return func(s *Service) {
		s.checkOnStart = enabled
	}
}

// WithLogger sets the logger for check results and scheduling.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier registers fn to receive every decision that reports an
// available update.
func WithNotifier(fn func(update.Decision)) Option {
	return func(s *Service) {
		s.notify = fn
	}
}

// Service schedules update checks.
type Service struct {
	settings       Settings
	checker        Checker
	interval       time.Duration
	feedURL        string
	currentVersion string
	checkOnStart   bool
	logger         *slog.Logger
	notify         func(update.Decision)

	// checkMu serializes checks so a settings change never races a tick.
	checkMu sync.Mutex

	mu        sync.Mutex
	running   bool
	scheduler *cron.Cron
	cancel    context.CancelFunc
	runCtx    context.Context
	unsub     func()
	wg        sync.WaitGroup
	feed      string
	disabled  bool
}

// New creates a Service reading settings and checking with checker.
func New(st Settings, checker Checker, opts ...Option) *Service {
	s := &Service{
		settings:     st,
		checker:      checker,
		interval:     DefaultInterval,
		feedURL:      update.DefaultFeedURL,
		checkOnStart: true,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the time between scheduled checks.
func (s *Service) Interval() time.Duration {
	return s.interval
}

// EffectiveFeedURL returns the feed a check would use right now.
func (s *Service) EffectiveFeedURL() string {
	return s.effectiveFeed(s.settings.Current())
}

// RunOnce performs one check now. It returns ErrUpdatesDisabled or
// ErrDevBuild when the check is skipped. Failures are logged and returned;
// the next scheduled run is the retry.
func (s *Service) RunOnce(ctx context.Context) (update.Decision, error) {
	raw := strings.TrimSpace(s.currentVersion)
	if raw == "" || strings.EqualFold(raw, "dev") {
		return update.Decision{}, ErrDevBuild
	}
	current, err := update.Normalize(raw)
	if err != nil {
		return update.Decision{}, err
	}

	snap := s.settings.Current()
	if snap.AutomaticUpdatesDisabled {
		return update.Decision{}, ErrUpdatesDisabled
	}
	feed := s.effectiveFeed(snap)

	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	decision, err := s.checker.CheckForUpdate(ctx, current, feed)
	if err != nil {
		s.logger.Warn("update check failed", "feed", feed, "error", err)
		return update.Decision{}, err
	}
	if !decision.Available {
		s.logger.Debug("no update available", "feed", feed, "current", current.String())
		return decision, nil
	}

	s.logger.Info("update available",
		"feed", feed,
		"current", current.String(),
		"latest", decision.Release.Version.String(),
		"name", decision.Release.DisplayName,
	)
	if s.notify != nil {
		s.notify(decision)
	}
	return decision, nil
}

// Start schedules checks every interval until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	log := cronLogger{logger: s.logger}
	scheduler := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	scheduler.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.runScheduled(runCtx, "schedule")
	}))

	snap := s.settings.Current()
	s.feed = s.effectiveFeed(snap)
	s.disabled = snap.AutomaticUpdatesDisabled
	s.runCtx = runCtx
	s.cancel = cancel
	s.scheduler = scheduler
	s.running = true
	s.unsub = s.settings.Subscribe(s.settingsChanged)

	scheduler.Start()
	s.logger.Info("update checks scheduled", "interval", s.interval.String(), "feed", s.feed)

	if s.checkOnStart {
		s.spawnLocked("start")
	}
	return nil
}

// Stop cancels scheduled checks and waits for a running check to finish.
// Stop is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	scheduler, cancel, unsub := s.scheduler, s.cancel, s.unsub
	s.scheduler, s.unsub = nil, nil
	s.mu.Unlock()

	unsub()
	cancel()
	<-scheduler.Stop().Done()
	s.wg.Wait()
	s.logger.Info("update checks stopped")
}

func (s *Service) settingsChanged(ev settings.Event) {
	feed := s.effectiveFeed(ev.Snapshot)
	disabled := ev.Snapshot.AutomaticUpdatesDisabled

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	reenabled := s.disabled && !disabled
	feedChanged := feed != s.feed
	s.feed, s.disabled = feed, disabled

	if disabled || (!reenabled && !feedChanged) {
		return
	}
	s.logger.Info("update settings changed, checking now",
		"reason", ev.Reason.String(),
		"feed", feed,
		"reenabled", reenabled,
	)
	s.spawnLocked("settings")
}

// spawnLocked runs a check in the background. s.mu must be held.
func (s *Service) spawnLocked(trigger string) {
	ctx := s.runCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runScheduled(ctx, trigger)
	}()
}

func (s *Service) runScheduled(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrUpdatesDisabled), errors.Is(err, ErrDevBuild):
		s.logger.Debug("update check skipped", "trigger", trigger, "reason", err)
	default:
		s.logger.Debug("update check will retry on next run", "trigger", trigger)
	}
}

func (s *Service) effectiveFeed(snap settings.Snapshot) string {
	if url := strings.TrimSpace(snap.AutomaticUpdateURL); url != "" {
		return url
	}
	return s.feedURL
}

// cronLogger adapts slog to cron.Logger. cron's info lines are per-tick
// noise, so they are demoted to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
