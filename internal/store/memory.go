package store

import (
	"sort"
	"sync"
	"time"

	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/models"
)

// MemoryStore provides an in-memory storage for posts, comments, likes
// and provider credentials. It is thread-safe and supports concurrent access.
type MemoryStore struct {
	mu          sync.RWMutex
	posts       map[string]*models.Post
	comments    []*models.Comment
	likes       []*models.Like
	credentials map[string]*models.Credential

	// Insertion sequence per credential, used as the final ordering
	// tie-break so selection stays deterministic.
	credSeq map[string]int64
	nextSeq int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:       make(map[string]*models.Post),
		credentials: make(map[string]*models.Credential),
		credSeq:     make(map[string]int64),
	}
}

// Post operations

// CreatePost stores a new post
func (s *MemoryStore) CreatePost(post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	s.posts[post.ID] = post
	return nil
}

// GetPost retrieves a post by ID
func (s *MemoryStore) GetPost(id string) (*models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	return post, true
}

// ListPosts returns all posts, oldest first
func (s *MemoryStore) ListPosts() []*models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Post, 0, len(s.posts))
	for _, post := range s.posts {
		result = append(result, post)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Comment operations

// CreateComment stores a new comment or reply
func (s *MemoryStore) CreateComment(comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	s.comments = append(s.comments, comment)
	return nil
}

// ListCommentsAfter returns top-level comments created strictly after the
// given time, oldest first, capped at limit, with replies attached.
func (s *MemoryStore) ListCommentsAfter(postID string, after *time.Time, limit int) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var topLevel []*models.Comment
	for _, c := range s.comments {
		if c.PostID != postID || c.IsReply() {
			continue
		}
		if after != nil && !c.CreatedAt.After(*after) {
			continue
		}
		topLevel = append(topLevel, c)
	}

	sort.SliceStable(topLevel, func(i, j int) bool {
		return topLevel[i].CreatedAt.Before(topLevel[j].CreatedAt)
	})

	if limit > 0 && len(topLevel) > limit {
		topLevel = topLevel[:limit]
	}

	result := make([]*models.Comment, 0, len(topLevel))
	for _, c := range topLevel {
		cp := *c
		cp.Replies = s.repliesOf(c.ID)
		result = append(result, &cp)
	}
	return result, nil
}

// repliesOf collects direct replies to a comment, oldest first.
// Caller must hold at least a read lock.
func (s *MemoryStore) repliesOf(commentID string) []models.Comment {
	var replies []models.Comment
	for _, c := range s.comments {
		if c.ParentID == commentID {
			replies = append(replies, *c)
		}
	}
	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return replies
}

// Like operations

// CreateLike stores a new like
func (s *MemoryStore) CreateLike(like *models.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	for _, l := range s.likes {
		if l.PostID == like.PostID && l.UserID == like.UserID {
			return nil
		}
	}
	s.likes = append(s.likes, like)
	return nil
}

// DeleteLike removes a user's like from a post
func (s *MemoryStore) DeleteLike(postID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.likes {
		if l.PostID == postID && l.UserID == userID {
			s.likes = append(s.likes[:i], s.likes[i+1:]...)
			return true
		}
	}
	return false
}

// ListLikesAfter returns likes created strictly after the given time,
// oldest first, capped at limit.
func (s *MemoryStore) ListLikesAfter(postID string, after *time.Time, limit int) ([]*models.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Like
	for _, l := range s.likes {
		if l.PostID != postID {
			continue
		}
		if after != nil && !l.CreatedAt.After(*after) {
			continue
		}
		result = append(result, l)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Credential operations

// GetCredential retrieves a credential by ID. The returned record is a
// copy; mutating it does not touch the stored one.
func (s *MemoryStore) GetCredential(id string) (*models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[id]
	if !ok {
		return nil, false
	}
	cp := *cred
	return &cp, true
}

// SetCredential stores or updates a credential
func (s *MemoryStore) SetCredential(cred *models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	if _, ok := s.credSeq[cred.ID]; !ok {
		s.credSeq[cred.ID] = s.nextSeq
		s.nextSeq++
	}
	s.credentials[cred.ID] = cred
}

// DeleteCredential removes a credential
func (s *MemoryStore) DeleteCredential(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[id]; !ok {
		return false
	}
	delete(s.credentials, id)
	delete(s.credSeq, id)
	return true
}

// ListCredentials returns credentials for a provider ordered least-used
// first. Ties break on creation time, then insertion order. Records are
// copies of the stored ones.
func (s *MemoryStore) ListCredentials(provider models.Provider) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Credential, 0)
	for _, cred := range s.credentials {
		if provider != "" && cred.Provider != provider {
			continue
		}
		cp := *cred
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount < b.UsageCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return s.credSeq[a.ID] < s.credSeq[b.ID]
	})
	return result, nil
}

// IncrementCredentialUsage atomically bumps a credential's usage counter
func (s *MemoryStore) IncrementCredentialUsage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return &errors.ErrCredentialNotFound{ID: id}
	}
	cred.UsageCount++
	cred.UpdatedAt = time.Now()
	return nil
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make(map[string]*models.Post)
	s.comments = nil
	s.likes = nil
	s.credentials = make(map[string]*models.Credential)
	s.credSeq = make(map[string]int64)
	s.nextSeq = 0
}

// Stats returns statistics about the store
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		PostCount:       len(s.posts),
		CommentCount:    len(s.comments),
		LikeCount:       len(s.likes),
		CredentialCount: len(s.credentials),
	}
}

// Close implements Store Close (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
