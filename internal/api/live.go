package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adatry/adatry/internal/notifier"
)

// handleLive streams new comments and likes for one post as server-sent
// events. Each event is a single data line carrying a JSON object with
// comments and likes arrays. The stream ends when the client disconnects
// or the server shuts down.
func (s *Server) handleLive(c *gin.Context) {
	postID := c.Query("post")
	if postID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "post query parameter is required"})
		return
	}
	if _, err := uuid.Parse(postID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "post id is not a valid identifier"})
		return
	}
	if _, ok := s.store.GetPost(postID); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "post not found"})
		return
	}

	session := notifier.NewSession(s.store, postID, s.liveConfig, s.logger, s.metrics)
	if err := session.Start(c.Request.Context()); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to start live session",
			"post_id", postID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to start live session"})
		return
	}
	defer session.Stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	s.logger.InfoWithContext(c.Request.Context(), "live stream opened",
		"post_id", postID, "client_ip", c.ClientIP())

	c.Stream(func(w io.Writer) bool {
		update, ok := <-session.Updates()
		if !ok {
			return false
		}
		payload, err := json.Marshal(update)
		if err != nil {
			s.logger.ErrorWithContext(c.Request.Context(), "failed to encode live update",
				"post_id", postID, "error", err.Error())
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		return true
	})

	s.logger.InfoWithContext(c.Request.Context(), "live stream closed", "post_id", postID)
}
