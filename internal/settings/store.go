package settings

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	appErrors "updatesvc/internal/errors"
)

// DefaultDebounce is how long the store waits for file events to settle
// before reacting to an external change.
const DefaultDebounce = 100 * time.Millisecond

type storeState int

const (
	stateNew storeState = iota
	stateWatching
	stateClosed
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for reload, reset and I/O failure messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Store keeps a Snapshot synchronized with a JSON file and notifies
// subscribers when it changes.
//
// Readers get an immutable copy of the current snapshot; Load, Save, Update and
// the reaction to external edits are serialized by a single mutex.
type Store struct {
	logger   *slog.Logger
	debounce time.Duration

	// mu serializes every mutation of the snapshot and the file.
	mu           sync.Mutex
	state        storeState
	path         string
	watcher      *fsnotify.Watcher
	done         chan struct{}
	lastWrite    [sha256.Size]byte
	hasLastWrite bool

	current   atomic.Pointer[Snapshot]
	selfWrite atomic.Bool

	timerMu sync.Mutex
	timer   *time.Timer
	stopped bool

	subsMu sync.RWMutex
	subs   map[uint64]func(Event)
	nextID uint64
}

// New creates a store holding the default snapshot. Call Initialize to bind
// it to a file.
func New(opts ...Option) *Store {
	s := &Store{
		logger:   slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
		subs:     make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	def := DefaultSnapshot()
	s.current.Store(&def)
	return s
}

// Initialize creates the directory holding path, starts watching path for
// external changes and loads it. A missing or unreadable file leaves the
// defaults in place. Initialize may be called only once per Store.
func (s *Store) Initialize(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateNew {
		return appErrors.New(appErrors.CodeAlreadyInitialized, "settings store already initialized", nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return configIOError("resolve settings path", err)
	}
	dir := filepath.Dir(abs)
	//nolint:gosec // G301: settings directory needs standard permissions
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return configIOError("create settings directory", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return configIOError("create settings watcher", err)
	}
	// A watch on the file itself is lost once the file is removed or replaced,
	// so watch its directory and filter events to abs.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return configIOError("watch settings directory", err)
	}

	s.path = abs
	s.watcher = watcher
	s.done = make(chan struct{})
	s.state = stateWatching
	go s.watchLoop(watcher, s.done)

	if err := s.loadLocked(); err != nil {
		s.logger.Debug("initial settings load failed, using defaults", "path", abs, "error", err)
	}
	return nil
}

// Path returns the watched settings file, or "" before Initialize.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Current returns a copy of the current snapshot.
func (s *Store) Current() Snapshot {
	return *s.current.Load()
}

// AutomaticUpdatesDisabled reports the current value of the setting.
func (s *Store) AutomaticUpdatesDisabled() bool {
	return s.current.Load().AutomaticUpdatesDisabled
}

// AutomaticUpdateURL reports the current value of the setting.
func (s *Store) AutomaticUpdateURL() string {
	return s.current.Load().AutomaticUpdateURL
}

// Subscribe registers fn for change events and returns a function that
// removes it. Handlers may run on any goroutine and should return quickly.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Load re-reads the settings file. On failure the current snapshot is kept
// and the error is returned. Load never raises a change event.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes the current snapshot to the settings file and raises one
// ReasonSaved event. A failed write raises nothing; the error is logged and
// returned for the caller to inspect or ignore.
func (s *Store) Save() error {
	s.mu.Lock()
	snap, err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(Event{Reason: ReasonSaved, Snapshot: snap})
	return nil
}

// Update applies fn to a copy of the current snapshot, installs the result and
// saves it, as one step with respect to other mutations. The new snapshot is
// kept in memory even when the write fails.
func (s *Store) Update(fn func(*Snapshot)) error {
	s.mu.Lock()
	next := *s.current.Load()
	fn(&next)
	s.current.Store(&next)
	snap, err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(Event{Reason: ReasonSaved, Snapshot: snap})
	return nil
}

// Shutdown stops watching the settings file. The snapshot stays readable.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	prev := s.state
	s.state = stateClosed
	watcher, done := s.watcher, s.done
	s.watcher = nil
	s.mu.Unlock()

	if prev != stateWatching {
		return nil
	}

	s.timerMu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerMu.Unlock()

	err := watcher.Close()
	<-done
	return err
}

func (s *Store) loadLocked() error {
	if s.path == "" {
		return configIOError("settings store not initialized", nil)
	}
	//nolint:gosec // G304: the settings path is chosen by the host
	data, err := os.ReadFile(s.path)
	if err != nil {
		return configIOError("read settings", err)
	}
	return s.apply(data)
}

func (s *Store) apply(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return configIOError("settings file is empty", nil)
	}
	var snap Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return configIOError("decode settings", err)
	}
	s.current.Store(&snap)
	return nil
}

func (s *Store) saveLocked() (Snapshot, error) {
	if s.path == "" {
		return Snapshot{}, configIOError("settings store not initialized", nil)
	}
	snap := *s.current.Load()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Snapshot{}, configIOError("encode settings", err)
	}
	data = append(data, '\n')

	s.selfWrite.Store(true)
	defer s.selfWrite.Store(false)

	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		s.logger.Warn("could not save settings", "path", s.path, "error", err)
		return Snapshot{}, configIOError("write settings", err)
	}
	s.lastWrite = sha256.Sum256(data)
	s.hasLastWrite = true
	s.logger.Debug("settings saved", "path", s.path)
	return snap, nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("settings watch error", "error", err)
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != s.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if s.selfWrite.Load() {
		return
	}
	s.scheduleReconcile()
}

func (s *Store) scheduleReconcile() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.reconcile)
}

// reconcile runs once file events have settled and brings the snapshot in
// line with what is on disk.
func (s *Store) reconcile() {
	s.mu.Lock()
	if s.state != stateWatching {
		s.mu.Unlock()
		return
	}

	var ev Event
	//nolint:gosec // G304: the settings path is chosen by the host
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("settings file removed, resetting to defaults", "path", s.path)
		def := DefaultSnapshot()
		s.current.Store(&def)
		s.hasLastWrite = false
		ev = Event{Reason: ReasonReset, Snapshot: def}
	case err == nil && s.hasLastWrite && sha256.Sum256(data) == s.lastWrite:
		// Late event from our own Save.
		s.mu.Unlock()
		return
	default:
		s.logger.Info("settings file changed, reloading", "path", s.path)
		if err == nil {
			err = s.apply(data)
		} else {
			err = configIOError("read settings", err)
		}
		if err != nil {
			s.logger.Warn("settings reload failed, keeping last known good", "path", s.path, "error", err)
		}
		s.hasLastWrite = false
		ev = Event{Reason: ReasonReloaded, Snapshot: *s.current.Load()}
	}
	s.mu.Unlock()

	s.emit(ev)
}

func (s *Store) emit(ev Event) {
	s.subsMu.RLock()
	handlers := make([]func(Event), 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subsMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so readers never see a partially written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func configIOError(msg string, err error) error {
	return appErrors.New(appErrors.CodeConfigIO, msg, err)
}
