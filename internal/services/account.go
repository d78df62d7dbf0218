package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/auth"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
)

// AccountService handles registration and login for every role
type AccountService struct {
	accounts store.Accounts
	issuer   *auth.Issuer
	now      Clock
	newID    IDFunc
}

// NewAccountService creates a new account service
func NewAccountService(accounts store.Accounts, issuer *auth.Issuer) *AccountService {
	return &AccountService{
		accounts: accounts,
		issuer:   issuer,
		now:      timeNow,
		newID:    newUUID,
	}
}

// Register creates an account. Email is unique per role.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest) (*models.Account, error) {
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email %q", req.Email)
	}
	if len(req.Password) < 6 {
		return nil, apperr.Validation("password must be at least 6 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	a := &models.Account{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		Address:      strings.TrimSpace(req.Address),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	log.Printf("[USER] Registered %s %s (%s)", a.Role, a.ID, a.Email)
	return a, nil
}

// Login checks credentials for a role and issues a token
func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (*models.Account, string, error) {
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, "", err
	}

	a, err := s.accounts.GetAccountByEmail(ctx, strings.TrimSpace(req.Email), role)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, "", err
	}
	if err := auth.CheckPassword(a.PasswordHash, req.Password); err != nil {
		return nil, "", err
	}

	token, err := s.issuer.Generate(a)
	if err != nil {
		return nil, "", err
	}
	return a, token, nil
}

// Get returns an account by id
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.GetAccount(ctx, id)
}

// List returns every account
func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	return s.accounts.ListAccounts(ctx)
}
