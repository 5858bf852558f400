package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/storage"
)

// testTimeout — общий дедлайн на операции с БД в тестах.
const testTimeout = 10 * time.Second

// TestMain запускает MongoDB в контейнере один раз на весь пакет.
// Без GO_TEST_INTEGRATION выполняются только unit-тесты.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("DATABASE_URL", fmt.Sprintf("mongodb://%s:%s", host, port.Port()))

	code := m.Run()

	_ = mongoC.Terminate(context.Background())
	os.Exit(code)
}

// newTestStorage создаёт хранилище с отдельной БД на каждый тест.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	base := strings.TrimRight(os.Getenv("DATABASE_URL"), "/")
	uri := base + "/users_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	st, err := New(ctx, uri)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = st.db.Drop(context.Background())
		st.Close()
	})

	return st
}

func TestDatabaseFromURI(t *testing.T) {
	t.Parallel()

	require.Equal(t, "shop", databaseFromURI("mongodb://localhost:27017"))
	require.Equal(t, "shop", databaseFromURI("mongodb://localhost:27017/"))
	require.Equal(t, "users", databaseFromURI("mongodb://localhost:27017/users?retryWrites=true"))
	require.Equal(t, "shop", databaseFromURI("::bad::"))
}

func TestDocMapping(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &models.User{
		ID:           uuid.New(),
		Name:         "Alice",
		Email:        "Alice@Example.COM",
		Role:         models.RoleAdmin,
		PasswordHash: "hash",
		Avatar:       &models.Avatar{URL: "u", PublicID: "p"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	d := toDoc(u)
	require.Equal(t, "alice@example.com", d.Email)
	require.Equal(t, u.ID.String(), d.ID)

	back, err := d.toModel()
	require.NoError(t, err)
	require.Equal(t, u.ID, back.ID)
	require.Equal(t, models.RoleAdmin, back.Role)
	require.Equal(t, u.Avatar, back.Avatar)

	d.ID = "broken"
	_, err = d.toModel()
	require.Error(t, err)
}

func TestIntegration_SaveAndLookup(t *testing.T) {
	st := newTestStorage(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &models.User{
		ID:           uuid.New(),
		Name:         "Bob",
		Email:        "Bob@Example.com",
		Role:         models.RoleUser,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.UserByEmail(ctx, "BOB@example.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.CreatedAt.Equal(now))

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", got.Email)
}

func TestIntegration_DuplicateEmail(t *testing.T) {
	st := newTestStorage(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	mk := func(email string) *models.User {
		return &models.User{ID: uuid.New(), Name: "x", Email: email, Role: models.RoleUser, PasswordHash: "h"}
	}

	require.NoError(t, st.SaveUser(ctx, mk("dup@example.com")))
	require.ErrorIs(t, st.SaveUser(ctx, mk("DUP@example.com")), storage.ErrAlreadyExists)
}

func TestIntegration_NotFound(t *testing.T) {
	st := newTestStorage(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	_, err := st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByEmail(ctx, "ghost@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
