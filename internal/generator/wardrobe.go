package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adatry/adatry/internal/cache"
	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/models"
)

// wardrobeClient runs virtual try-on against a wardrobe service. Each
// credential carries its own endpoint, so different keys can point at
// different deployments. Clothing item lookups are cached briefly since
// the catalog changes far less often than try-ons run.
type wardrobeClient struct {
	http  *RotatingClient
	items *cache.TTLCache
}

type clothingItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

func newWardrobeClient(cfg config.WardrobeConfig) *wardrobeClient {
	return &wardrobeClient{
		http:  NewRotatingClientWithTimeout(cfg.Timeout),
		items: cache.NewTTL(cfg.ItemCacheTTL),
	}
}

type wardrobeTryOnRequest struct {
	PersonImage   string `json:"person_image"`
	MimeType      string `json:"mime_type"`
	ClothingID    string `json:"clothing_id"`
	ClothingImage string `json:"clothing_image"`
}

type wardrobeTryOnResponse struct {
	ResultURL string `json:"result_url"`
	Message   string `json:"message"`
}

func (w *wardrobeClient) Generate(ctx context.Context, cred *models.Credential, req Request) (*Result, error) {
	if cred.Endpoint == "" {
		return nil, fmt.Errorf("credential has no endpoint")
	}
	if req.ClothingID == "" {
		return nil, fmt.Errorf("clothing_id is required")
	}

	item, err := w.fetchItem(ctx, cred, req.ClothingID)
	if err != nil {
		return nil, err
	}

	payload := wardrobeTryOnRequest{
		PersonImage:   base64.StdEncoding.EncodeToString(req.Image),
		MimeType:      req.MimeType,
		ClothingID:    item.ID,
		ClothingImage: item.ImageURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(cred.Endpoint, "/tryon"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := w.http.Do(httpReq)
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

	var out wardrobeTryOnResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ResultURL == "" {
		return nil, fmt.Errorf("no image in response")
	}

	return &Result{URL: out.ResultURL}, nil
}

// fetchItem resolves a clothing item, hitting the catalog only on cache miss.
func (w *wardrobeClient) fetchItem(ctx context.Context, cred *models.Credential, clothingID string) (*clothingItem, error) {
	cacheKey := cred.Endpoint + "|" + clothingID
	if cached, ok := w.items.Get(cacheKey); ok {
		return cached.(*clothingItem), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(cred.Endpoint, "/items/"+clothingID), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := w.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("clothing item not found: %s", clothingID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("item lookup returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var item clothingItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}

	w.items.Set(cacheKey, &item)
	return &item, nil
}

func endpointURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
