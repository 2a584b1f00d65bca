package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adatry/adatry/internal/models"
)

// CreateCredentialRequest represents a request to register a credential
type CreateCredentialRequest struct {
	ID       string `json:"id,omitempty"`
	Provider string `json:"provider" binding:"required"`
	Token    string `json:"token" binding:"required"`
	Endpoint string `json:"endpoint,omitempty"`
	Label    string `json:"label,omitempty"`
}

// handleListCredentials returns the credential pool ordered by ascending
// usage. Tokens are never included in the response.
func (s *Server) handleListCredentials(c *gin.Context) {
	provider := models.Provider(c.Query("provider"))
	if provider != "" && !provider.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "unknown provider: " + string(provider)})
		return
	}

	creds, err := s.store.ListCredentials(provider)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to list credentials", "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to list credentials"})
		return
	}

	resp := make([]models.Credential, 0, len(creds))
	for _, cred := range creds {
		resp = append(resp, cred.Redacted())
	}
	c.JSON(http.StatusOK, resp)
}

// handleCreateCredential registers or replaces a credential in the pool
func (s *Server) handleCreateCredential(c *gin.Context) {
	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	cred := &models.Credential{
		ID:        id,
		Provider:  models.Provider(req.Provider),
		Label:     req.Label,
		Endpoint:  req.Endpoint,
		Token:     req.Token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.store.GetCredential(id); ok {
		cred.UsageCount = existing.UsageCount
		cred.CreatedAt = existing.CreatedAt
	}
	if err := cred.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid credential", Message: err.Error()})
		return
	}

	s.store.SetCredential(cred)

	s.logger.InfoWithContext(c.Request.Context(), "credential registered",
		"credential_id", cred.ID, "provider", string(cred.Provider))

	c.JSON(http.StatusCreated, cred.Redacted())
}

// handleDeleteCredential removes a credential from the pool
func (s *Server) handleDeleteCredential(c *gin.Context) {
	id := c.Param("id")
	if !s.store.DeleteCredential(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Message: "credential not found"})
		return
	}

	s.logger.InfoWithContext(c.Request.Context(), "credential removed", "credential_id", id)
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
