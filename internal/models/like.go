package models

import (
	"fmt"
	"time"
)

// Like represents one user's like on a discussion post.
type Like struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the like is valid.
func (l *Like) Validate() error {
	if l.PostID == "" {
		return fmt.Errorf("post ID is required")
	}
	if l.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	return nil
}
