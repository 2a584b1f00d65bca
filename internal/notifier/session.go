// Package notifier implements per-connection live update sessions. A
// session watches a single post and periodically polls the store for
// comments and likes that appeared since the last delivered batch.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/metrics"
	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/store"
)

// Update carries new engagement for a watched post. At least one of the
// two slices is non-empty; ticks with nothing new produce no Update.
type Update struct {
	Comments []*models.Comment `json:"comments,omitempty"`
	Likes    []*models.Like    `json:"likes,omitempty"`
}

// Config holds configuration for a live update session
type Config struct {
	Interval   time.Duration
	BatchLimit int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Interval:   10 * time.Second,
		BatchLimit: 3,
	}
}

// Session polls the store for new comments and likes on one post.
// Each watermark starts nil, so the first poll replays existing history
// up to the batch limit, then advances independently per kind.
type Session struct {
	store      store.Store
	postID     string
	interval   time.Duration
	batchLimit int

	logger  *logging.Logger
	metrics *metrics.Metrics

	// Watermarks. nil means no batch delivered yet for that kind.
	commentMark *time.Time
	likeMark    *time.Time

	updates chan Update

	// Control
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSession creates a session watching the given post
func NewSession(s store.Store, postID string, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 3
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &Session{
		store:      s,
		postID:     postID,
		interval:   cfg.Interval,
		batchLimit: cfg.BatchLimit,
		logger:     logger,
		metrics:    m,
		updates:    make(chan Update, 16),
	}
}

// Updates returns the channel on which new engagement is delivered.
// The channel is closed when the session stops.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Start begins the session's polling loop
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return &errors.ErrServerStart{Addr: "live-session", Err: fmt.Errorf("session already running")}
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.pollLoop(ctx)

	if s.metrics != nil {
		s.metrics.LiveSessionStarted()
	}

	return nil
}

// Stop shuts down the session and waits for the poll goroutine to exit
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()

	if s.metrics != nil {
		s.metrics.LiveSessionStopped()
	}
}

// IsRunning returns true if the session is running
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// pollLoop is the main polling loop. A single goroutine runs all polls,
// so ticks never overlap even when a poll runs long.
func (s *Session) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.updates)

	// Initial poll replays history before the first interval elapses
	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll runs one tick: fetch new comments and likes past their watermarks
// and deliver them if anything turned up. A query failure on either kind
// voids the whole tick: nothing is delivered and neither watermark
// advances, so the next tick retries the same window.
func (s *Session) poll(ctx context.Context) {
	comments, err := s.store.ListCommentsAfter(s.postID, s.commentMark, s.batchLimit)
	if err != nil {
		s.logger.WarnWithContext(ctx, "live poll failed", "post_id", s.postID, "kind", "comments", "error", err.Error())
		if s.metrics != nil {
			s.metrics.RecordLivePollTick("error")
		}
		return
	}

	likes, err := s.store.ListLikesAfter(s.postID, s.likeMark, s.batchLimit)
	if err != nil {
		s.logger.WarnWithContext(ctx, "live poll failed", "post_id", s.postID, "kind", "likes", "error", err.Error())
		if s.metrics != nil {
			s.metrics.RecordLivePollTick("error")
		}
		return
	}

	var update Update
	if len(comments) > 0 {
		mark := comments[len(comments)-1].CreatedAt
		s.commentMark = &mark
		update.Comments = comments
	}
	if len(likes) > 0 {
		mark := likes[len(likes)-1].CreatedAt
		s.likeMark = &mark
		update.Likes = likes
	}

	if len(update.Comments) == 0 && len(update.Likes) == 0 {
		if s.metrics != nil {
			s.metrics.RecordLivePollTick("empty")
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordLivePollTick("delivered")
	}

	if s.metrics != nil {
		s.metrics.RecordLiveEvents("comment", len(update.Comments))
		s.metrics.RecordLiveEvents("like", len(update.Likes))
	}

	select {
	case s.updates <- update:
	case <-s.stopCh:
	case <-ctx.Done():
	}
}
