package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/go-shop-auth/internal/http/errors"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/pkg/authctx"
	"github.com/pribylovaa/go-shop-auth/internal/service"
)

type userResponse struct {
	Success bool              `json:"success"`
	User    models.PublicUser `json:"user"`
}

// Me — GET /me, текущий пользователь из AuthContext.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := authctx.From(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrNotAuthenticated)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Success: true, User: ac.User})
}

// GetUser — GET /admin/users/{id}. Читает хранилище в обход кэша identity.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	u, err := h.Auth.FreshIdentity(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Success: true, User: *u})
}
