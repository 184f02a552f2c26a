package handlers

import (
	"context"
	"net/http"

	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
)

type userService interface {
	Register(ctx context.Context, req *models.RegisterRequest, role models.UserRole) (*models.User, error)
	Authenticate(ctx context.Context, req *models.LoginRequest, role models.UserRole) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

type tokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

type AuthHandler struct {
	users  userService
	tokens tokenIssuer
	logger zerolog.Logger
}

func NewAuthHandler(users userService, tokens tokenIssuer, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.RoleBuyer)
}

func (h *AuthHandler) RegisterSeller(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.RoleSeller)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "")
}

func (h *AuthHandler) LoginSeller(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, models.RoleSeller)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request, role models.UserRole) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	user, err := h.users.Register(r.Context(), &req, role)
	if err != nil {
		h.logger.Warn().Err(err).Str("role", string(role)).Msg("Registration failed")
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, role models.UserRole) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	user, err := h.users.Authenticate(r.Context(), &req, role)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, code int, user *models.User) {
	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		h.logger.Error().Err(err).Msg("Token generation failed")
		respondWithError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}

	respondWithJSON(w, code, models.AuthResponse{
		Token: token,
		User:  user,
	})
}
