package models

import (
	"fmt"
	"net/url"
	"time"
)

// Provider represents an image-generation provider.
type Provider string

const (
	ProviderGemini   Provider = "gemini"
	ProviderQwen     Provider = "qwen"
	ProviderWardrobe Provider = "wardrobe"
)

// Valid reports whether the provider is one this service can route to.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGemini, ProviderQwen, ProviderWardrobe:
		return true
	}
	return false
}

// Credential represents one registered third-party account in the pool.
// Endpoint is set only for multi-deployment providers (wardrobe); for
// fixed-endpoint providers it stays empty and the client supplies the URL.
type Credential struct {
	ID         string    `json:"id"`
	Provider   Provider  `json:"provider"`
	Label      string    `json:"label,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Token      string    `json:"-"`
	UsageCount int64     `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks if the credential is valid.
func (c *Credential) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("credential ID is required")
	}
	if !c.Provider.Valid() {
		return fmt.Errorf("unknown provider: %s", c.Provider)
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if c.UsageCount < 0 {
		return fmt.Errorf("usage count cannot be negative")
	}
	if c.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
			return fmt.Errorf("invalid endpoint URL: %w", err)
		}
	}
	return nil
}

// Redacted returns a copy safe for logging and API responses.
func (c *Credential) Redacted() Credential {
	out := *c
	out.Token = ""
	return out
}
