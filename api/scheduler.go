/*
scheduler.go - Background sweeper for expiring content and sessions

PURPOSE:
  Stories expire 24 hours after creation and sessions after their TTL.
  The sweeper periodically deletes both. It never touches the ledger:
  credits earned by an expired story stay in the balance and the journal.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Sweeps once immediately on start
  - Each sweep is independent; a failed sweep is logged and retried on
    the next tick

USAGE:
  sweeper := api.NewSweeper(store, authService, logger)
  sweeper.CheckInterval = cfg.Sweeper.Interval
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - store/sqlite/content.go: DeleteExpiredStories
  - auth/auth.go: PurgeExpired
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StoryStore deletes stories whose expiry has passed.
type StoryStore interface {
	DeleteExpiredStories(ctx context.Context, now time.Time) (int64, error)
}

// SessionPurger deletes expired sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Stories  int64
	Sessions int64
}

// Sweeper removes expired stories and sessions on a timer.
type Sweeper struct {
	Stories       StoryStore
	Sessions      SessionPurger
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper with a five minute interval. Either
// dependency may be nil.
func NewSweeper(stories StoryStore, sessions SessionPurger, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		Stories:       stories,
		Sessions:      sessions,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		Now:           time.Now,
		logger:        logger.With("component", "sweeper"),
	}
}

// Start begins the sweeper.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.logger.Info("started", "interval", s.CheckInterval)
}

// Stop stops the sweeper and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (s *Sweeper) RunNow(ctx context.Context) SweepResult {
	var res SweepResult

	if s.Stories != nil {
		n, err := s.Stories.DeleteExpiredStories(ctx, s.Now())
		if err != nil {
			s.logger.Error("story sweep failed", "error", err)
		} else {
			res.Stories = n
		}
	}

	if s.Sessions != nil {
		n, err := s.Sessions.PurgeExpired(ctx)
		if err != nil {
			s.logger.Error("session sweep failed", "error", err)
		} else {
			res.Sessions = n
		}
	}

	if res.Stories > 0 || res.Sessions > 0 {
		s.logger.Info("swept", "stories", res.Stories, "sessions", res.Sessions)
	}
	return res
}
