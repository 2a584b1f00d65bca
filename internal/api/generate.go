package api

import (
	"encoding/base64"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/generator"
	"github.com/adatry/adatry/internal/models"
)

// GenerateResponse represents the outcome of a try-on generation. Either
// ImageURL or ImageBase64 is set depending on the provider.
type GenerateResponse struct {
	Provider    string `json:"provider"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

// handleGenerate runs a try-on generation through the least-used
// credential of the requested provider. Input is multipart form data:
// an optional image file, a prompt, and for wardrobe a clothing_id.
func (s *Server) handleGenerate(c *gin.Context) {
	provider := models.Provider(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "unknown provider: " + c.Param("provider")})
		return
	}

	prompt := c.PostForm("prompt")
	clothingID := c.PostForm("clothing_id")

	var (
		image    []byte
		mimeType string
	)
	file, header, err := c.Request.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image, err = io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "failed to read image: " + err.Error()})
			return
		}
		mimeType = header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(image)
		}
	case stderrors.Is(err, http.ErrMissingFile), stderrors.Is(err, http.ErrNotMultipart):
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	if prompt == "" && len(image) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "prompt or image is required"})
		return
	}
	if provider == models.ProviderWardrobe && clothingID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "clothing_id is required for wardrobe generations"})
		return
	}

	result, err := s.generator.Generate(c.Request.Context(), generator.Request{
		Provider:   provider,
		Prompt:     prompt,
		Image:      image,
		MimeType:   mimeType,
		ClothingID: clothingID,
	})
	if err != nil {
		var noCreds *errors.ErrNoCredentials
		if stderrors.As(err, &noCreds) {
			s.metrics.RecordError("no_credentials", "/generations/:provider", "POST")
			if s.notifier != nil {
				s.notifier.PoolEmpty(string(provider))
			}
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no credentials configured", Message: err.Error()})
			return
		}
		var genErr *errors.ErrGeneration
		if stderrors.As(err, &genErr) {
			s.metrics.RecordError("generation_error", "/generations/:provider", "POST")
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: "processing failed", Message: "generation failed, please try again"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	resp := GenerateResponse{Provider: string(provider)}
	if result.URL != "" {
		resp.ImageURL = result.URL
	} else {
		resp.ImageBase64 = base64.StdEncoding.EncodeToString(result.Data)
		resp.MimeType = result.MimeType
	}
	c.JSON(http.StatusOK, resp)
}
