package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/storage"
)

func TestSaveAndLookup(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := &models.User{ID: uuid.New(), Email: "User@Example.com", Role: models.RoleUser, Avatar: &models.Avatar{URL: "a"}}
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.UserByEmail(ctx, "user@EXAMPLE.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	// Возвращается копия: мутации не протекают в хранилище.
	got.Avatar.URL = "changed"
	again, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "a", again.Avatar.URL)
}

func TestSaveUser_Duplicates(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := &models.User{ID: uuid.New(), Email: "a@b.c"}
	require.NoError(t, st.SaveUser(ctx, u))

	require.ErrorIs(t, st.SaveUser(ctx, &models.User{ID: uuid.New(), Email: "A@B.C"}), storage.ErrAlreadyExists)
	require.ErrorIs(t, st.SaveUser(ctx, &models.User{ID: u.ID, Email: "x@y.z"}), storage.ErrAlreadyExists)
}

func TestNotFound_And_Delete(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	_, err := st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	u := &models.User{ID: uuid.New(), Email: "gone@b.c"}
	require.NoError(t, st.SaveUser(ctx, u))
	require.NoError(t, st.DeleteUser(ctx, u.ID))

	_, err = st.UserByEmail(ctx, "gone@b.c")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, st.DeleteUser(ctx, u.ID), storage.ErrNotFound)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, New().Ping(ctx), context.Canceled)
	require.NoError(t, New().Ping(context.Background()))
}

func TestConcurrentSave(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	const n = 32
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.SaveUser(ctx, &models.User{ID: uuid.New(), Email: "race@example.com"})
			if err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, oks)
}
