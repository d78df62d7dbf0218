// Package services holds the marketplace business rules. Services depend on
// the store interfaces, never on a concrete backend.
package services

import (
	"context"
	"time"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"github.com/google/uuid"
)

// Clock returns the current time; tests pin it
type Clock func() time.Time

// IDFunc generates entity ids
type IDFunc func() string

func newUUID() string { return uuid.NewString() }

func timeNow() time.Time { return time.Now() }

// requireRole loads an account and checks it holds role
func requireRole(ctx context.Context, accounts store.Accounts, id string, role models.Role) (*models.Account, error) {
	if id == "" {
		return nil, apperr.Validation("%s id is required", role)
	}
	a, err := accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Role != role {
		return nil, apperr.Validation("account %s is not a %s", id, role)
	}
	return a, nil
}
