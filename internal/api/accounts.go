package api

import (
	"net/http"

	"github.com/agrichain/marketplace/internal/middleware"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/gorilla/mux"
)

// RegisterHandler handles POST /users/register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := a.svc.Accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User registered successfully", envelope{"user": account})
}

// LoginHandler handles POST /users/login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	account, token, err := a.svc.Accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", envelope{"token": token, "user": account})
}

// ListAccountsHandler handles GET /users
func (a *App) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.svc.Accounts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users fetched successfully", envelope{"users": accounts})
}

// GetAccountHandler handles GET /users/{id}
func (a *App) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !middleware.CanActFor(r.Context(), id) {
		writeError(w, r, forbidden("cannot view account %s", id))
		return
	}

	account, err := a.svc.Accounts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User fetched successfully", envelope{"user": account})
}
