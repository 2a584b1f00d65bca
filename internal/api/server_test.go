package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/generator"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/metrics"
	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/rotator"
	"github.com/adatry/adatry/internal/store"
)

func setupTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	return setupTestServerWithAuth(t, config.AuthConfig{})
}

func setupTestServerWithAuth(t *testing.T, auth config.AuthConfig) (*Server, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemoryStore()
	logger := logging.NewLogger(logging.WithOutput(io.Discard))
	m := metrics.NewMetrics("adatry")

	provCfg := config.ProvidersConfig{}
	require.NoError(t, provCfg.Validate())
	gen := generator.NewService(rotator.New(mem, logger, m), provCfg, logger, m)

	cfg := config.ServerConfig{Host: "localhost", HTTPPort: 8412}
	apiCfg := config.APIConfig{Auth: auth}
	liveCfg := config.LiveConfig{Interval: 20 * time.Millisecond, BatchLimit: 3}

	return NewServer(cfg, apiCfg, liveCfg, mem, gen, logger, m), mem
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	server.router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHandleMetrics(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	server.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "adatry_http_requests_in_flight")
	assert.Contains(t, w.Body.String(), "adatry_http_requests_total")
}

func TestHandleCreatePost(t *testing.T) {
	server, mem := setupTestServer(t)

	w := postJSON(t, server, "/posts", CreatePostRequest{
		AuthorID:   "user-1",
		AuthorName: "Alice",
		Title:      "First outfit",
		Body:       "What do you think?",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var post models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "First outfit", post.Title)

	_, ok := mem.GetPost(post.ID)
	assert.True(t, ok)
}

func TestHandleCreatePostMissingTitle(t *testing.T) {
	server, _ := setupTestServer(t)

	w := postJSON(t, server, "/posts", CreatePostRequest{AuthorID: "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetPostNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/posts/missing", nil)
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCreateCommentSanitizesBody(t *testing.T) {
	server, _ := setupTestServer(t)

	post := &models.Post{ID: "post-1", AuthorID: "user-1", Title: "Look", CreatedAt: time.Now()}
	require.NoError(t, server.store.CreatePost(post))

	w := postJSON(t, server, "/posts/post-1/comments", CreateCommentRequest{
		AuthorID: "user-2",
		Body:     `Nice <b>fit</b> <script>alert(1)</script>here`,
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))
	assert.Contains(t, comment.Body, "<b>fit</b>")
	assert.NotContains(t, comment.Body, "script")
	assert.NotContains(t, comment.Body, "alert")
}

func TestHandleCreateCommentRejectedWhenEmptyAfterSanitization(t *testing.T) {
	server, _ := setupTestServer(t)

	post := &models.Post{ID: "post-1", AuthorID: "user-1", Title: "Look", CreatedAt: time.Now()}
	require.NoError(t, server.store.CreatePost(post))

	w := postJSON(t, server, "/posts/post-1/comments", CreateCommentRequest{
		AuthorID: "user-2",
		Body:     `<script>alert(1)</script>`,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateCommentUnknownPost(t *testing.T) {
	server, _ := setupTestServer(t)

	w := postJSON(t, server, "/posts/missing/comments", CreateCommentRequest{
		AuthorID: "user-2",
		Body:     "hello",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListComments(t *testing.T) {
	server, mem := setupTestServer(t)

	post := &models.Post{ID: "post-1", AuthorID: "user-1", Title: "Look", CreatedAt: time.Now()}
	require.NoError(t, mem.CreatePost(post))
	base := time.Now().Add(-time.Minute)
	for i, body := range []string{"first", "second"} {
		require.NoError(t, mem.CreateComment(&models.Comment{
			ID: body, PostID: "post-1", AuthorID: "user-2", Body: body,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/posts/post-1/comments", nil)
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var comments []models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comments))
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Body)
}

func TestHandleLikeAndUnlike(t *testing.T) {
	server, mem := setupTestServer(t)

	post := &models.Post{ID: "post-1", AuthorID: "user-1", Title: "Look", CreatedAt: time.Now()}
	require.NoError(t, mem.CreatePost(post))

	w := postJSON(t, server, "/posts/post-1/likes", CreateLikeRequest{UserID: "user-2", UserName: "Bob"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/posts/post-1/likes/user-2", nil)
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/posts/post-1/likes/user-2", nil)
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	server, _ := setupTestServerWithAuth(t, config.AuthConfig{
		Enabled: true,
		APIKeys: []string{"secret123"},
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/posts", nil)
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/posts", nil)
	req.Header.Set(DefaultAPIKeyHeader, "secret123")
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuthLeavesHealthOpen(t *testing.T) {
	server, _ := setupTestServerWithAuth(t, config.AuthConfig{
		Enabled: true,
		APIKeys: []string{"secret123"},
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListCredentialsRedactsTokens(t *testing.T) {
	server, mem := setupTestServer(t)

	mem.SetCredential(&models.Credential{
		ID: "cred-a", Provider: models.ProviderQwen, Token: "sk-secret", UsageCount: 5,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	mem.SetCredential(&models.Credential{
		ID: "cred-b", Provider: models.ProviderQwen, Token: "sk-other", UsageCount: 1,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/credentials", nil)
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")

	var creds []models.Credential
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &creds))
	require.Len(t, creds, 2)
	assert.Equal(t, "cred-b", creds[0].ID)
	assert.Equal(t, "cred-a", creds[1].ID)
}

func TestHandleCreateCredentialPreservesUsage(t *testing.T) {
	server, mem := setupTestServer(t)

	mem.SetCredential(&models.Credential{
		ID: "cred-a", Provider: models.ProviderQwen, Token: "sk-old", UsageCount: 9,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	w := postJSON(t, server, "/credentials", CreateCredentialRequest{
		ID:       "cred-a",
		Provider: "qwen",
		Token:    "sk-new",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	cred, ok := mem.GetCredential("cred-a")
	require.True(t, ok)
	assert.Equal(t, "sk-new", cred.Token)
	assert.Equal(t, int64(9), cred.UsageCount)
}

func TestHandleCreateCredentialInvalidProvider(t *testing.T) {
	server, _ := setupTestServer(t)

	w := postJSON(t, server, "/credentials", CreateCredentialRequest{
		Provider: "unknown",
		Token:    "sk-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeleteCredential(t *testing.T) {
	server, mem := setupTestServer(t)

	mem.SetCredential(&models.Credential{
		ID: "cred-a", Provider: models.ProviderQwen, Token: "sk-1",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/credentials/cred-a", nil)
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/credentials/cred-a", nil)
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaskAPIKeys(t *testing.T) {
	masked := MaskAPIKeys([]string{"abc", "secret123"})
	assert.Equal(t, "***", masked[0])
	assert.Equal(t, "secr*****", masked[1])
}
