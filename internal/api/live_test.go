package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/notifier"
	"github.com/adatry/adatry/internal/store"
)

func TestHandleLiveMissingPostParam(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/live", nil)
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "post query parameter is required")
}

func TestHandleLiveMalformedPostID(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/live?post=not-a-valid-id", nil)
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLiveUnknownPost(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/live?post="+uuid.New().String(), nil)
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// seedLivePost creates a post with n comments spaced a second apart in
// the past so backfill ordering is deterministic.
func seedLivePost(t *testing.T, mem *store.MemoryStore, n int) string {
	t.Helper()
	postID := uuid.New().String()
	require.NoError(t, mem.CreatePost(&models.Post{
		ID: postID, AuthorID: "user-1", Title: "Look", CreatedAt: time.Now().Add(-time.Hour),
	}))
	base := time.Now().Add(-time.Minute)
	for i := 0; i < n; i++ {
		require.NoError(t, mem.CreateComment(&models.Comment{
			ID:        uuid.New().String(),
			PostID:    postID,
			AuthorID:  "user-2",
			Body:      "comment",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return postID
}

// readEvent reads lines until the next SSE data line and decodes it.
func readEvent(t *testing.T, r *bufio.Reader) notifier.Update {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var update notifier.Update
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &update))
		return update
	}
}

func TestHandleLiveStreamsBackfillAndNewComments(t *testing.T) {
	server, mem := setupTestServer(t)
	postID := seedLivePost(t, mem, 2)

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/live?post="+postID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	update := readEvent(t, reader)
	assert.Len(t, update.Comments, 2)
	assert.Empty(t, update.Likes)

	// New engagement after the stream is open shows up on a later tick
	require.NoError(t, mem.CreateComment(&models.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  "user-3",
		Body:      "late arrival",
		CreatedAt: time.Now(),
	}))
	require.NoError(t, mem.CreateLike(&models.Like{
		ID:        uuid.New().String(),
		PostID:    postID,
		UserID:    "user-4",
		CreatedAt: time.Now(),
	}))

	update = readEvent(t, reader)
	total := len(update.Comments) + len(update.Likes)
	for total < 2 {
		next := readEvent(t, reader)
		total += len(next.Comments) + len(next.Likes)
	}
	assert.Equal(t, 2, total)
}

func TestHandleLiveBackfillRespectsBatchLimit(t *testing.T) {
	server, mem := setupTestServer(t)
	postID := seedLivePost(t, mem, 5)

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/live?post="+postID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	update := readEvent(t, reader)
	assert.Len(t, update.Comments, 3)

	update = readEvent(t, reader)
	assert.Len(t, update.Comments, 2)
}
