package generator

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/models"
)

// geminiClient generates images through the Gemini API. A fresh SDK
// client is built per call because the API key comes from whichever
// credential the rotator handed out.
type geminiClient struct {
	model   string
	timeout time.Duration
}

func newGeminiClient(cfg config.GeminiConfig) *geminiClient {
	return &geminiClient{
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (g *geminiClient) Generate(ctx context.Context, cred *models.Credential, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cred.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, req.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &Result{
					Data:     part.InlineData.Data,
					MimeType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("no image in response")
}
