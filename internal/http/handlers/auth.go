package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/go-shop-auth/internal/http/errors"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/service"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

type registerRequest struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Avatar   *models.Avatar `json:"avatar,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RegisterUser — POST /register.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	u, err := h.Auth.RegisterUser(r.Context(), service.RegisterInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Avatar:   in.Avatar,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.issue(w, r, *u, http.StatusCreated, service.ReasonRegister, "Registration successful")
}

// LoginUser — POST /login.
func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	u, err := h.Auth.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.issue(w, r, *u, http.StatusOK, service.ReasonLogin, "Login successful")
}

// RefreshToken — POST /refresh-token. Тело не читается: refresh-токен
// приходит только в cookie.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	rt, _ := h.Cookies.Read(r, token.KindRefresh)

	u, err := h.Auth.RefreshSession(r.Context(), rt)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.issue(w, r, *u, http.StatusOK, service.ReasonRefresh, "Token refreshed successfully")
}

// LogoutUser — POST /logout. Идемпотентен и не требует валидной сессии.
func (h *Handlers) LogoutUser(w http.ResponseWriter, r *http.Request) {
	h.Auth.EndSession(r.Context(), w)

	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Logged out successfully"})
}

// issue ставит cookie новой сессии и пишет тело ответа.
func (h *Handlers) issue(w http.ResponseWriter, r *http.Request, u models.PublicUser, status int, reason, message string) {
	resp, err := h.Auth.IssueSession(r.Context(), w, u, reason, message)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, status, resp)
}
