package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides a SQLite-based storage for posts, engagement and
// credentials with WAL mode. It is thread-safe and supports concurrent access.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *logging.Logger

	// Retention cleanup
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	retentionDays int
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithRetention(dbPath, 90) // Default 90 days retention
}

// NewSQLiteStoreWithRetention creates a new SQLite store with custom retention
func NewSQLiteStoreWithRetention(dbPath string, retentionDays int) (*SQLiteStore, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	// Open database with WAL mode enabled
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=cache_size(2000)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{
		db:            db,
		logger:        logging.NewLogger(),
		cleanupDone:   make(chan struct{}),
		retentionDays: retentionDays,
	}

	// Start retention cleanup goroutine if retention is enabled
	if retentionDays > 0 {
		store.startCleanup()
	}

	return store, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	// Get current migration version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	// Define migrations
	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS posts (
					id TEXT PRIMARY KEY,
					author_id TEXT NOT NULL,
					author_name TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL DEFAULT '',
					body TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS comments (
					id TEXT PRIMARY KEY,
					post_id TEXT NOT NULL,
					parent_id TEXT,
					author_id TEXT NOT NULL,
					author_name TEXT NOT NULL DEFAULT '',
					body TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS likes (
					id TEXT PRIMARY KEY,
					post_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					user_name TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (post_id, user_id),
					FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_comments_post_created ON comments(post_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments(parent_id);
				CREATE INDEX IF NOT EXISTS idx_likes_post_created ON likes(post_id, created_at);
			`,
		},
		{
			version: 2,
			up: `
				CREATE TABLE IF NOT EXISTS credentials (
					id TEXT PRIMARY KEY,
					provider TEXT NOT NULL,
					label TEXT NOT NULL DEFAULT '',
					endpoint TEXT NOT NULL DEFAULT '',
					token TEXT NOT NULL,
					usage_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_credentials_provider_usage ON credentials(provider, usage_count);
			`,
		},
	}

	// Run pending migrations
	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// startCleanup starts the retention cleanup goroutine
func (s *SQLiteStore) startCleanup() {
	s.cleanupTicker = time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupOldData()
			case <-s.cleanupDone:
				return
			}
		}
	}()
}

// cleanupOldData removes old engagement data based on retention policy.
// Posts and credentials are kept indefinitely.
func (s *SQLiteStore) cleanupOldData() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	if _, err := s.db.Exec("DELETE FROM comments WHERE created_at < ?", cutoff); err != nil {
		s.logger.Error("cleanup failed", "table", "comments", "error", err.Error())
	}
	if _, err := s.db.Exec("DELETE FROM likes WHERE created_at < ?", cutoff); err != nil {
		s.logger.Error("cleanup failed", "table", "likes", "error", err.Error())
	}
}

// Close gracefully shuts down the store
func (s *SQLiteStore) Close() error {
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
		close(s.cleanupDone)
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Post operations

// CreatePost stores a new post
func (s *SQLiteStore) CreatePost(post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO posts (id, author_id, author_name, title, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, post.ID, post.AuthorID, post.AuthorName, post.Title, post.Body, post.CreatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create post", Err: err}
	}
	return nil
}

// GetPost retrieves a post by ID
func (s *SQLiteStore) GetPost(id string) (*models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var post models.Post
	err := s.db.QueryRow(`
		SELECT id, author_id, author_name, title, body, created_at
		FROM posts WHERE id = ?
	`, id).Scan(&post.ID, &post.AuthorID, &post.AuthorName, &post.Title, &post.Body, &post.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	return &post, true
}

// ListPosts returns all posts, oldest first
func (s *SQLiteStore) ListPosts() []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, author_id, author_name, title, body, created_at
		FROM posts ORDER BY created_at, id
	`)
	if err != nil {
		return []*models.Post{}
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.AuthorName, &post.Title, &post.Body, &post.CreatedAt); err != nil {
			continue
		}
		posts = append(posts, &post)
	}

	return posts
}

// Comment operations

// CreateComment stores a new comment or reply
func (s *SQLiteStore) CreateComment(comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}

	var parentID interface{}
	if comment.ParentID != "" {
		parentID = comment.ParentID
	}

	_, err := s.db.Exec(`
		INSERT INTO comments (id, post_id, parent_id, author_id, author_name, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, comment.ID, comment.PostID, parentID, comment.AuthorID, comment.AuthorName, comment.Body, comment.CreatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create comment", Err: err}
	}
	return nil
}

// ListCommentsAfter returns top-level comments created strictly after the
// given time, oldest first, capped at limit, with replies attached.
func (s *SQLiteStore) ListCommentsAfter(postID string, after *time.Time, limit int) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, post_id, author_id, author_name, body, created_at
		FROM comments
		WHERE post_id = ? AND parent_id IS NULL
	`
	args := []interface{}{postID}
	if after != nil {
		query += " AND created_at > ?"
		args = append(args, *after)
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list comments", Err: err}
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan comment", Err: err}
		}
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list comments", Err: err}
	}

	for _, c := range comments {
		replies, err := s.repliesOf(c.ID)
		if err != nil {
			return nil, err
		}
		c.Replies = replies
	}

	return comments, nil
}

// repliesOf collects direct replies to a comment, oldest first.
// Caller must hold at least a read lock.
func (s *SQLiteStore) repliesOf(commentID string) ([]models.Comment, error) {
	rows, err := s.db.Query(`
		SELECT id, post_id, parent_id, author_id, author_name, body, created_at
		FROM comments WHERE parent_id = ? ORDER BY created_at, id
	`, commentID)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list replies", Err: err}
	}
	defer rows.Close()

	var replies []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.ParentID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan reply", Err: err}
		}
		replies = append(replies, c)
	}
	return replies, rows.Err()
}

// Like operations

// CreateLike stores a new like. Duplicate likes by the same user on the
// same post are ignored.
func (s *SQLiteStore) CreateLike(like *models.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO likes (id, post_id, user_id, user_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(post_id, user_id) DO NOTHING
	`, like.ID, like.PostID, like.UserID, like.UserName, like.CreatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create like", Err: err}
	}
	return nil
}

// DeleteLike removes a user's like from a post
func (s *SQLiteStore) DeleteLike(postID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM likes WHERE post_id = ? AND user_id = ?", postID, userID)
	if err != nil {
		return false
	}

	rows, _ := result.RowsAffected()
	return rows > 0
}

// ListLikesAfter returns likes created strictly after the given time,
// oldest first, capped at limit.
func (s *SQLiteStore) ListLikesAfter(postID string, after *time.Time, limit int) ([]*models.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, post_id, user_id, user_name, created_at
		FROM likes WHERE post_id = ?
	`
	args := []interface{}{postID}
	if after != nil {
		query += " AND created_at > ?"
		args = append(args, *after)
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list likes", Err: err}
	}
	defer rows.Close()

	var likes []*models.Like
	for rows.Next() {
		var l models.Like
		if err := rows.Scan(&l.ID, &l.PostID, &l.UserID, &l.UserName, &l.CreatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan like", Err: err}
		}
		likes = append(likes, &l)
	}
	return likes, rows.Err()
}

// Credential operations

// GetCredential retrieves a credential by ID
func (s *SQLiteStore) GetCredential(id string) (*models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cred models.Credential
	err := s.db.QueryRow(`
		SELECT id, provider, label, endpoint, token, usage_count, created_at, updated_at
		FROM credentials WHERE id = ?
	`, id).Scan(&cred.ID, &cred.Provider, &cred.Label, &cred.Endpoint, &cred.Token, &cred.UsageCount, &cred.CreatedAt, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	return &cred, true
}

// SetCredential stores or updates a credential
func (s *SQLiteStore) SetCredential(cred *models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO credentials (id, provider, label, endpoint, token, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			label = excluded.label,
			endpoint = excluded.endpoint,
			token = excluded.token,
			usage_count = excluded.usage_count,
			updated_at = excluded.updated_at
	`, cred.ID, cred.Provider, cred.Label, cred.Endpoint, cred.Token, cred.UsageCount, cred.CreatedAt, cred.UpdatedAt)

	if err != nil {
		s.logger.Error("failed to set credential", "error", err.Error())
	}
}

// DeleteCredential removes a credential
func (s *SQLiteStore) DeleteCredential(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return false
	}

	rows, _ := result.RowsAffected()
	return rows > 0
}

// ListCredentials returns credentials for a provider ordered least-used
// first. Ties break on creation time, then on ID.
func (s *SQLiteStore) ListCredentials(provider models.Provider) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, provider, label, endpoint, token, usage_count, created_at, updated_at
		FROM credentials
	`
	args := []interface{}{}
	if provider != "" {
		query += " WHERE provider = ?"
		args = append(args, string(provider))
	}
	query += " ORDER BY usage_count, created_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list credentials", Err: err}
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var cred models.Credential
		if err := rows.Scan(&cred.ID, &cred.Provider, &cred.Label, &cred.Endpoint, &cred.Token, &cred.UsageCount, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan credential", Err: err}
		}
		creds = append(creds, &cred)
	}
	return creds, rows.Err()
}

// IncrementCredentialUsage atomically bumps a credential's usage counter
func (s *SQLiteStore) IncrementCredentialUsage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE credentials SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "increment credential usage", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &errors.ErrCredentialNotFound{ID: id}
	}
	return nil
}

// Clear removes all data from the store
func (s *SQLiteStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"likes", "comments", "posts", "credentials"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			s.logger.Error("failed to clear table", "table", table, "error", err.Error())
		}
	}
}

// Stats returns statistics about the store
func (s *SQLiteStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats StoreStats
	counts := []struct {
		table string
		dst   *int
	}{
		{"posts", &stats.PostCount},
		{"comments", &stats.CommentCount},
		{"likes", &stats.LikeCount},
		{"credentials", &stats.CredentialCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			s.logger.Error("failed to count rows", "table", c.table, "error", err.Error())
		}
	}

	return stats
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
