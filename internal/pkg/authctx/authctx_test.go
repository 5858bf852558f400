package authctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-shop-auth/internal/models"
)

func TestIntoFrom(t *testing.T) {
	t.Parallel()

	_, ok := From(context.Background())
	require.False(t, ok)

	ac := AuthContext{
		User:   models.PublicUser{ID: uuid.New(), Role: models.RoleAdmin},
		Source: SourceRefreshed,
	}
	got, ok := From(Into(context.Background(), ac))
	require.True(t, ok)
	require.Equal(t, ac, got)
}
