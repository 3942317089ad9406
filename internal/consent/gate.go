// Package consent checks that a user has opted in to AI processing.
package consent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

// ProfileStore reads the AI consent flag of a profile. A missing profile is
// reported as errors.ErrNotFound.
type ProfileStore interface {
	AIConsent(ctx context.Context, userID types.ID) (bool, error)
}

// Gate is the precondition of every interpretation request.
type Gate struct {
	store ProfileStore
	log   zerolog.Logger
}

// NewGate creates a new consent gate
func NewGate(store ProfileStore, log zerolog.Logger) *Gate {
	return &Gate{store: store, log: log.With().Str("component", "consent").Logger()}
}

// Check returns nil only when the user has explicitly granted consent.
// A refused or absent consent yields ConsentRequired; a failed lookup yields
// ProfileLookup so the two cases stay distinguishable.
func (g *Gate) Check(ctx context.Context, userID types.ID) error {
	granted, err := g.store.AIConsent(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.ConsentRequired()
		}
		g.log.Error().Err(err).Msg("profile lookup failed")
		return errors.ProfileLookup(err)
	}
	if !granted {
		return errors.ConsentRequired()
	}
	return nil
}
