package notifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/store"
)

// countingStore wraps a store and counts engagement queries. It can also
// be told to fail comment queries.
type countingStore struct {
	store.Store

	commentCalls atomic.Int64
	likeCalls    atomic.Int64

	mu           sync.Mutex
	failComments bool
}

func (c *countingStore) setFailComments(fail bool) {
	c.mu.Lock()
	c.failComments = fail
	c.mu.Unlock()
}

func (c *countingStore) ListCommentsAfter(postID string, after *time.Time, limit int) ([]*models.Comment, error) {
	c.commentCalls.Add(1)
	c.mu.Lock()
	fail := c.failComments
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("simulated query failure")
	}
	return c.Store.ListCommentsAfter(postID, after, limit)
}

func (c *countingStore) ListLikesAfter(postID string, after *time.Time, limit int) ([]*models.Like, error) {
	c.likeCalls.Add(1)
	return c.Store.ListLikesAfter(postID, after, limit)
}

func testConfig() Config {
	return Config{Interval: 20 * time.Millisecond, BatchLimit: 3}
}

func seedComments(t *testing.T, s store.Store, postID string, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.CreateComment(&models.Comment{
			ID:        fmt.Sprintf("c%d", i+1),
			PostID:    postID,
			AuthorID:  "u1",
			Body:      "body",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func collectUpdate(t *testing.T, s *Session) Update {
	t.Helper()
	select {
	case u, ok := <-s.Updates():
		require.True(t, ok, "updates channel closed early")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func TestSessionBackfillRespectsBatchLimit(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Now().Add(-time.Hour)
	seedComments(t, mem, "p1", 5, base)

	session := NewSession(mem, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	// First poll replays history capped at the batch limit.
	first := collectUpdate(t, session)
	require.Len(t, first.Comments, 3)
	assert.Equal(t, "c1", first.Comments[0].ID)
	assert.Equal(t, "c3", first.Comments[2].ID)

	// Next tick picks up exactly the remainder.
	second := collectUpdate(t, session)
	require.Len(t, second.Comments, 2)
	assert.Equal(t, "c4", second.Comments[0].ID)
	assert.Equal(t, "c5", second.Comments[1].ID)
}

func TestSessionDeliversEachEventOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Now().Add(-time.Hour)
	seedComments(t, mem, "p1", 7, base)
	require.NoError(t, mem.CreateLike(&models.Like{ID: "l1", PostID: "p1", UserID: "u2", CreatedAt: base}))

	session := NewSession(mem, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	seen := make(map[string]int)
	likes := 0
	deadline := time.After(2 * time.Second)
	for len(seen) < 7 || likes < 1 {
		select {
		case u := <-session.Updates():
			for _, c := range u.Comments {
				seen[c.ID]++
			}
			likes += len(u.Likes)
		case <-deadline:
			t.Fatalf("timed out, saw %d comments and %d likes", len(seen), likes)
		}
	}

	for id, count := range seen {
		assert.Equalf(t, 1, count, "comment %s delivered %d times", id, count)
	}
	assert.Equal(t, 1, likes)
}

func TestSessionSilentWhenNothingNew(t *testing.T) {
	mem := store.NewMemoryStore()

	session := NewSession(mem, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	select {
	case u := <-session.Updates():
		t.Fatalf("unexpected update: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionFailSoftKeepsPolling(t *testing.T) {
	mem := store.NewMemoryStore()
	cs := &countingStore{Store: mem}
	cs.setFailComments(true)

	base := time.Now().Add(-time.Hour)
	seedComments(t, mem, "p1", 2, base)
	require.NoError(t, mem.CreateLike(&models.Like{ID: "l1", PostID: "p1", UserID: "u2", CreatedAt: base}))

	session := NewSession(cs, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	// A failing comment query voids the whole tick: no likes sneak out
	// and the session keeps running.
	select {
	case u := <-session.Updates():
		t.Fatalf("unexpected update during failure: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, session.IsRunning())
	assert.Greater(t, cs.commentCalls.Load(), int64(1), "polling stopped after failure")

	// Once the query recovers, the full backlog is delivered; the failed
	// ticks advanced neither watermark.
	cs.setFailComments(false)
	first := collectUpdate(t, session)
	require.Len(t, first.Comments, 2)
	assert.Equal(t, "c1", first.Comments[0].ID)
	require.Len(t, first.Likes, 1)
}

func TestSessionStopEndsPolling(t *testing.T) {
	mem := store.NewMemoryStore()
	cs := &countingStore{Store: mem}

	session := NewSession(cs, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))

	// Let a few ticks happen, then stop.
	time.Sleep(70 * time.Millisecond)
	session.Stop()
	assert.False(t, session.IsRunning())

	// No further queries after Stop returns.
	calls := cs.commentCalls.Load()
	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, calls, cs.commentCalls.Load())

	// Channel is closed so consumers drain and exit.
	for range session.Updates() {
	}
}

func TestSessionContextCancelEndsPolling(t *testing.T) {
	mem := store.NewMemoryStore()
	cs := &countingStore{Store: mem}

	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(cs, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(ctx))

	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	calls := cs.commentCalls.Load()
	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, calls, cs.commentCalls.Load())
}

func TestSessionDoubleStartFails(t *testing.T) {
	mem := store.NewMemoryStore()

	session := NewSession(mem, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	assert.Error(t, session.Start(context.Background()))
}

func TestSessionWatermarkIsStrictlyGreater(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Now().Add(-time.Hour)
	seedComments(t, mem, "p1", 1, base)

	session := NewSession(mem, "p1", testConfig(), nil, nil)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	first := collectUpdate(t, session)
	require.Len(t, first.Comments, 1)

	// A later comment lands and is delivered; the earlier one, sitting
	// exactly at the watermark, is not re-sent.
	require.NoError(t, mem.CreateComment(&models.Comment{
		ID: "c2", PostID: "p1", AuthorID: "u1", Body: "body",
		CreatedAt: base.Add(time.Minute),
	}))

	second := collectUpdate(t, session)
	require.Len(t, second.Comments, 1)
	assert.Equal(t, "c2", second.Comments[0].ID)
}
