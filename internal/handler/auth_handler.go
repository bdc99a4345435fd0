package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"portal-api/internal/auth"
	"portal-api/internal/model"
)

// AuthHandler serves login, logout and the current-user endpoint.
type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.auth))
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := validateLogin(&req); len(details) > 0 {
		respondValidation(w, details)
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Same response for unknown email, wrong password and inactive
		// account: no user-existence oracle.
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"fullName": user.FullName,
			"role":     user.Role,
		},
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or revoked token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), claims)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or revoked token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"fullName": user.FullName,
			"role":     user.Role,
			"admin":    user.Role == model.RoleAdmin,
		},
	})
}
