package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adatry/adatry/internal/models"
)

// CreatePostRequest represents a request to create a post
type CreatePostRequest struct {
	AuthorID   string `json:"author_id" binding:"required"`
	AuthorName string `json:"author_name"`
	Title      string `json:"title" binding:"required"`
	Body       string `json:"body,omitempty"`
}

// handleCreatePost creates a new discussion post
func (s *Server) handleCreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	post := &models.Post{
		ID:         uuid.New().String(),
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Title:      strings.TrimSpace(s.sanitizer.Sanitize(req.Title)),
		Body:       s.sanitizer.Sanitize(req.Body),
		CreatedAt:  time.Now().UTC(),
	}
	if err := post.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid post", Message: err.Error()})
		return
	}

	if err := s.store.CreatePost(post); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to create post", "error", err.Error())
		s.metrics.RecordError("store_error", "/posts", "POST")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to create post"})
		return
	}

	s.logger.InfoWithContext(c.Request.Context(), "post created", "post_id", post.ID, "author_id", post.AuthorID)
	c.JSON(http.StatusCreated, post)
}

// handleListPosts returns all posts
func (s *Server) handleListPosts(c *gin.Context) {
	posts := s.store.ListPosts()
	if posts == nil {
		posts = []*models.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

// handleGetPost returns a single post
func (s *Server) handleGetPost(c *gin.Context) {
	post, ok := s.store.GetPost(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "post not found"})
		return
	}
	c.JSON(http.StatusOK, post)
}

// CreateCommentRequest represents a request to comment on a post
type CreateCommentRequest struct {
	AuthorID   string `json:"author_id" binding:"required"`
	AuthorName string `json:"author_name"`
	ParentID   string `json:"parent_id,omitempty"`
	Body       string `json:"body" binding:"required"`
}

// handleCreateComment adds a comment or reply to a post
func (s *Server) handleCreateComment(c *gin.Context) {
	postID := c.Param("id")
	if _, ok := s.store.GetPost(postID); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "post not found"})
		return
	}

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	body := strings.TrimSpace(s.sanitizer.Sanitize(req.Body))
	if body == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid comment", Message: "body is empty after sanitization"})
		return
	}

	comment := &models.Comment{
		ID:         uuid.New().String(),
		PostID:     postID,
		ParentID:   req.ParentID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	if err := comment.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid comment", Message: err.Error()})
		return
	}

	if err := s.store.CreateComment(comment); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to create comment",
			"post_id", postID, "error", err.Error())
		s.metrics.RecordError("store_error", "/posts/:id/comments", "POST")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to create comment"})
		return
	}

	c.JSON(http.StatusCreated, comment)
}

// handleListComments returns a post's top-level comments with replies
func (s *Server) handleListComments(c *gin.Context) {
	postID := c.Param("id")
	if _, ok := s.store.GetPost(postID); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "post not found"})
		return
	}

	comments, err := s.store.ListCommentsAfter(postID, nil, 0)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to list comments",
			"post_id", postID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to list comments"})
		return
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	c.JSON(http.StatusOK, comments)
}

// CreateLikeRequest represents a request to like a post
type CreateLikeRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name"`
}

// handleCreateLike records a user's like on a post. Liking twice is a no-op.
func (s *Server) handleCreateLike(c *gin.Context) {
	postID := c.Param("id")
	if _, ok := s.store.GetPost(postID); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "post not found"})
		return
	}

	var req CreateLikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	like := &models.Like{
		ID:        uuid.New().String(),
		PostID:    postID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		CreatedAt: time.Now().UTC(),
	}
	if err := like.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid like", Message: err.Error()})
		return
	}

	if err := s.store.CreateLike(like); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to create like",
			"post_id", postID, "error", err.Error())
		s.metrics.RecordError("store_error", "/posts/:id/likes", "POST")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to create like"})
		return
	}

	c.JSON(http.StatusCreated, like)
}

// handleDeleteLike removes a user's like from a post
func (s *Server) handleDeleteLike(c *gin.Context) {
	postID := c.Param("id")
	userID := c.Param("user")

	if !s.store.DeleteLike(postID, userID) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "like not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
