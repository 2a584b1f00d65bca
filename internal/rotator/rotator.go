// Package rotator selects provider credentials from the persisted pool,
// always picking the least-used key so load spreads evenly across keys.
package rotator

import (
	"context"

	"github.com/adatry/adatry/internal/errors"
	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/metrics"
	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/store"
)

// Rotator picks credentials for outbound provider calls
type Rotator struct {
	store   store.Store
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New creates a rotator backed by the given store
func New(s store.Store, logger *logging.Logger, m *metrics.Metrics) *Rotator {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Rotator{
		store:   s,
		logger:  logger,
		metrics: m,
	}
}

// Select returns the least-used credential for the provider and persists
// the usage bump before returning, so the selection is durable even if
// the outbound call that follows never completes. There is no retry or
// fallback: one selection per request.
func (r *Rotator) Select(ctx context.Context, provider models.Provider) (*models.Credential, error) {
	creds, err := r.store.ListCredentials(provider)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, &errors.ErrNoCredentials{Provider: string(provider)}
	}

	cred := creds[0]
	if err := r.store.IncrementCredentialUsage(cred.ID); err != nil {
		return nil, err
	}
	// Bring the returned record in line with the persisted count.
	cred.UsageCount++

	if r.metrics != nil {
		r.metrics.RecordCredentialSelection(string(provider))
	}
	r.logger.DebugWithContext(ctx, "credential selected",
		"provider", string(provider),
		"credential_id", cred.ID,
		"usage_count", cred.UsageCount,
	)

	return cred, nil
}
