package models

import (
	"fmt"
	"time"
)

// Post represents a discussion post. The live stream and the comment/like
// surfaces are scoped to a single post.
type Post struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks if the post is valid.
func (p *Post) Validate() error {
	if p.AuthorID == "" {
		return fmt.Errorf("author ID is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}
