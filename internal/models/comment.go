package models

import (
	"fmt"
	"time"
)

// Comment represents a comment on a discussion post. Top-level comments
// carry their full reply subtree in Replies; replies have ParentID set
// and never nest further.
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Replies    []Comment `json:"replies,omitempty"`
}

// Validate checks if the comment is valid.
func (c *Comment) Validate() error {
	if c.PostID == "" {
		return fmt.Errorf("post ID is required")
	}
	if c.AuthorID == "" {
		return fmt.Errorf("author ID is required")
	}
	if c.Body == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

// IsReply reports whether the comment belongs to another comment's thread.
func (c *Comment) IsReply() bool {
	return c.ParentID != ""
}
