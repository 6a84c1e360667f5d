package calendar

import (
	"context"

	"taskcal/internal/domain"
	"taskcal/internal/models"
)

// Resolver finds the calendar credential a user linked most recently.
type Resolver struct {
	store domain.CredentialStore
}

func NewResolver(store domain.CredentialStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns nil, nil when the user never linked a calendar.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*models.ExternalCredential, error) {
	if userID == "" {
		return nil, nil
	}
	return r.store.FindLatestCredential(ctx, userID)
}
