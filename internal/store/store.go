package store

import (
	"time"

	"github.com/adatry/adatry/internal/models"
)

// StoreStats contains statistics about the store
type StoreStats struct {
	PostCount       int
	CommentCount    int
	LikeCount       int
	CredentialCount int
}

// Store defines the interface for post, engagement and credential storage
type Store interface {
	// Post operations
	CreatePost(post *models.Post) error
	GetPost(id string) (*models.Post, bool)
	ListPosts() []*models.Post

	// Comment operations. ListCommentsAfter returns top-level comments
	// of a post created strictly after the given time, oldest first,
	// capped at limit, with reply subtrees attached. A nil time means
	// from the beginning of the post's history.
	CreateComment(comment *models.Comment) error
	ListCommentsAfter(postID string, after *time.Time, limit int) ([]*models.Comment, error)

	// Like operations. ListLikesAfter follows the same windowing rules
	// as ListCommentsAfter.
	CreateLike(like *models.Like) error
	DeleteLike(postID, userID string) bool
	ListLikesAfter(postID string, after *time.Time, limit int) ([]*models.Like, error)

	// Credential operations. ListCredentials returns credentials for a
	// provider ordered least-used first with a stable tie-break, so the
	// first element is always the next selection candidate.
	GetCredential(id string) (*models.Credential, bool)
	SetCredential(cred *models.Credential)
	DeleteCredential(id string) bool
	ListCredentials(provider models.Provider) ([]*models.Credential, error)
	IncrementCredentialUsage(id string) error

	// Management
	Clear()
	Stats() StoreStats
	Close() error
}
