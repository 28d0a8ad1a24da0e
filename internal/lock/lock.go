// Package lock keeps a single watcher per content directory using a yaml
// lock file with heartbeat and TTL stale detection.
package lock

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/fsutil"
)

// LockFileName is the name of the lock file in the content directory.
const LockFileName = ".famplan-watch.lock"

// DefaultTTL is the default time-to-live for locks.
const DefaultTTL = 60 * time.Second

// DefaultHeartbeatInterval is the default interval for heartbeat updates.
const DefaultHeartbeatInterval = 10 * time.Second

// Lock is the content of a lock file.
type Lock struct {
	Owner     string    `yaml:"owner"`     // user@machine identifier
	Acquired  time.Time `yaml:"acquired"`  // when lock was acquired
	Heartbeat time.Time `yaml:"heartbeat"` // last heartbeat update
	TTL       string    `yaml:"ttl"`       // time-to-live as duration string
	PID       int       `yaml:"pid"`       // process ID of lock holder
}

// TTLDuration parses the TTL string and returns a time.Duration.
func (l *Lock) TTLDuration() time.Duration {
	d, err := time.ParseDuration(l.TTL)
	if err != nil {
		return DefaultTTL
	}
	return d
}

// IsStale reports whether the heartbeat is older than the TTL at now.
func (l *Lock) IsStale(now time.Time) bool {
	return now.Sub(l.Heartbeat) > l.TTLDuration()
}

// DefaultOwner returns "user@host" for the current process.
func DefaultOwner() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}

// DirLock guards one directory.
type DirLock struct {
	dir   string
	owner string
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

// Option configures a DirLock.
type Option func(*DirLock)

// WithTTL sets the TTL written into the lock file.
func WithTTL(ttl time.Duration) Option {
	return func(l *DirLock) {
		l.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *DirLock) {
		l.now = now
	}
}

// New creates a lock for dir held under owner.
func New(dir, owner string, opts ...Option) *DirLock {
	l := &DirLock{
		dir:   dir,
		owner: owner,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return filepath.Join(l.dir, LockFileName)
}

// readLock reads and parses the lock file.
func (l *DirLock) readLock() (*Lock, error) {
	data, err := os.ReadFile(l.Path())
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &lock, nil
}

// writeLock writes the lock file atomically.
func (l *DirLock) writeLock(lock *Lock) error {
	data, err := yaml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}

	if err := fsutil.WriteFileAtomic(l.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// live reports whether an existing lock still blocks others. A lock whose
// process has exited on this machine is dead even before its TTL runs out.
func (l *DirLock) live(lock *Lock) bool {
	if lock.IsStale(l.now()) {
		return false
	}
	if lock.Owner == l.owner && lock.PID != 0 && !processExists(lock.PID) {
		return false
	}
	return true
}

// Acquire takes the lock, creating the directory if needed. It fails with
// a SYNC_LOCKED error while another live process holds it.
func (l *DirLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readLock()
	switch {
	case err == nil:
		if l.live(existing) && (existing.Owner != l.owner || existing.PID != os.Getpid()) {
			return ferrors.ErrSyncLocked(l.dir, fmt.Sprintf("%s (pid %d)", existing.Owner, existing.PID))
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read lock: %w", err)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	now := l.now().UTC()
	return l.writeLock(&Lock{
		Owner:     l.owner,
		Acquired:  now,
		Heartbeat: now,
		TTL:       l.ttl.String(),
		PID:       os.Getpid(),
	})
}

// Release removes the lock if this process holds it.
func (l *DirLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readLock()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}
	if !l.ours(existing) {
		return fmt.Errorf("release %s: lock held by %s (pid %d)", l.dir, existing.Owner, existing.PID)
	}
	if err := os.Remove(l.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Heartbeat refreshes the heartbeat timestamp.
func (l *DirLock) Heartbeat() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readLock()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("lock not found in %s", l.dir)
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if !l.ours(existing) {
		return fmt.Errorf("heartbeat %s: lock held by %s (pid %d)", l.dir, existing.Owner, existing.PID)
	}

	existing.Heartbeat = l.now().UTC()
	if err := l.writeLock(existing); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// Holder returns the live lock on the directory, or nil.
func (l *DirLock) Holder() (*Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, err := l.readLock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	if !l.live(lock) {
		return nil, nil
	}
	return lock, nil
}

func (l *DirLock) ours(lock *Lock) bool {
	return lock.Owner == l.owner && lock.PID == os.Getpid()
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 checks existence.
	return process.Signal(syscall.Signal(0)) == nil
}

// HeartbeatRunner runs periodic heartbeat updates for a lock.
type HeartbeatRunner struct {
	lock     *DirLock
	interval time.Duration
	stopCh   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewHeartbeatRunner creates a new heartbeat runner.
func NewHeartbeatRunner(lock *DirLock, interval time.Duration) *HeartbeatRunner {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatRunner{
		lock:     lock,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the heartbeat loop in a goroutine.
func (h *HeartbeatRunner) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				// Ignore heartbeat errors - lock will become stale if they persist
				_ = h.lock.Heartbeat()
			}
		}
	}()
}

// Stop stops the heartbeat loop and waits for it to finish.
func (h *HeartbeatRunner) Stop() {
	h.once.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}
