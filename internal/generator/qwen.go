package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/models"
)

// qwenClient generates images through the Qwen image synthesis endpoint.
type qwenClient struct {
	endpoint string
	model    string
	http     *RotatingClient
}

func newQwenClient(cfg config.QwenConfig) *qwenClient {
	return &qwenClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		http:     NewRotatingClientWithTimeout(cfg.Timeout),
	}
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt string `json:"prompt"`
		Image  string `json:"image,omitempty"`
	} `json:"input"`
	Parameters struct {
		Seed int64 `json:"seed"`
	} `json:"parameters"`
}

type qwenResponse struct {
	Output struct {
		Results []struct {
			URL string `json:"url"`
		} `json:"results"`
	} `json:"output"`
	Message string `json:"message"`
}

func (q *qwenClient) Generate(ctx context.Context, cred *models.Credential, req Request) (*Result, error) {
	endpoint := q.endpoint
	if cred.Endpoint != "" {
		endpoint = cred.Endpoint
	}

	var payload qwenRequest
	payload.Model = q.model
	payload.Input.Prompt = req.Prompt
	if len(req.Image) > 0 {
		payload.Input.Image = fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.Image))
	}
	payload.Parameters.Seed = rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1 << 31)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := q.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out qwenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Output.Results) == 0 || out.Output.Results[0].URL == "" {
		return nil, fmt.Errorf("no image in response")
	}

	return &Result{URL: out.Output.Results[0].URL}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
