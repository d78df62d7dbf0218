package services

import (
	"context"
	"testing"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.accounts.Register(ctx, models.RegisterRequest{
		Name:     " Asha ",
		Email:    "asha@farm.test",
		Password: "secret1",
		Role:     "Farmer",
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha", a.Name)
	assert.Equal(t, models.RoleFarmer, a.Role)
	assert.NotEqual(t, "secret1", a.PasswordHash)

	got, token, err := f.accounts.Login(ctx, models.LoginRequest{Email: "asha@farm.test", Password: "secret1", Role: "farmer"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NotEmpty(t, token)

	claims, err := f.accounts.issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, claims.UserID)
	assert.Equal(t, models.RoleFarmer, claims.Role)
}

func TestRegisterSameEmailPerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := models.RegisterRequest{Name: "Ravi", Email: "ravi@agri.test", Password: "secret1", Role: "customer"}

	_, err := f.accounts.Register(ctx, req)
	require.NoError(t, err)

	_, err = f.accounts.Register(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	req.Role = "farmer"
	_, err = f.accounts.Register(ctx, req)
	assert.NoError(t, err, "the same email may hold another role")
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]models.RegisterRequest{
		"unknown role":   {Name: "A", Email: "a@agri.test", Password: "secret1", Role: "wizard"},
		"missing name":   {Name: " ", Email: "a@agri.test", Password: "secret1", Role: "customer"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "secret1", Role: "customer"},
		"short password": {Name: "A", Email: "a@agri.test", Password: "123", Role: "customer"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.accounts.Register(context.Background(), req)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.accounts.Register(ctx, models.RegisterRequest{Name: "Ravi", Email: "ravi@agri.test", Password: "secret1", Role: "customer"})
	require.NoError(t, err)

	_, _, err = f.accounts.Login(ctx, models.LoginRequest{Email: "ravi@agri.test", Password: "wrong!!", Role: "customer"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, _, err = f.accounts.Login(ctx, models.LoginRequest{Email: "ravi@agri.test", Password: "secret1", Role: "farmer"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, _, err = f.accounts.Login(ctx, models.LoginRequest{Email: "nobody@agri.test", Password: "secret1", Role: "customer"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, _, err = f.accounts.Login(ctx, models.LoginRequest{Email: "ravi@agri.test", Password: "secret1", Role: ""})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
