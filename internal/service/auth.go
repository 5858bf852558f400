package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/pkg/log"
	"github.com/pribylovaa/go-shop-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-shop-auth/internal/storage"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   *models.Avatar
}

// RegisterUser регистрирует нового пользователя с ролью user.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*models.PublicUser, error) {
	const op = "service.auth.RegisterUser"

	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingFields)
	}

	normEmail, err := validateEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.users.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        normEmail,
		Role:         models.RoleUser,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if in.Avatar != nil && in.Avatar.URL != "" {
		a := *in.Avatar
		user.Avatar = &a
	}

	if err := s.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	pub := Sanitize(user)
	return &pub, nil
}

// LoginUser выполняет вход по email+пароль.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.PublicUser, error) {
	const op = "service.auth.LoginUser"

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingFields)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.users.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		log.From(ctx).Warn("login_wrong_password",
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pub := Sanitize(user)
	return &pub, nil
}

// RefreshSession проверяет refresh-токен и возвращает его владельца.
// Новую пару выпускает вызывающий через IssueSession.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*models.PublicUser, error) {
	const op = "service.auth.RefreshSession"

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	sub, err := s.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		log.From(ctx).Warn("refresh_token_rejected",
			slog.String("op", op),
			slog.String("token", redact.Token(refreshToken)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	u, err := s.FreshIdentity(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// Identity возвращает санитизированного пользователя по ID: сначала из кэша,
// затем из хранилища. Ошибки кэша не фатальны.
//
// Запись кэша может пережить удаление или смену роли пользователя не дольше
// identity_ttl. Там, где это недопустимо (ротация пары, RoleGate), вызывается
// FreshIdentity.
func (s *Service) Identity(ctx context.Context, id uuid.UUID) (*models.PublicUser, error) {
	const op = "service.auth.Identity"

	if s.icache != nil {
		u, ok, err := s.icache.Get(ctx, id)
		switch {
		case err != nil:
			log.From(ctx).Warn("identity_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		case ok:
			return u, nil
		}
	}

	u, err := s.FreshIdentity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// FreshIdentity читает пользователя из хранилища в обход кэша и обновляет кэш:
// найденный пользователь перезаписывается, удалённый вытесняется.
func (s *Service) FreshIdentity(ctx context.Context, id uuid.UUID) (*models.PublicUser, error) {
	const op = "service.auth.FreshIdentity"

	lg := log.From(ctx)

	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.evictIdentity(ctx, id)
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pub := Sanitize(user)
	if !pub.Role.Valid() {
		lg.Warn("unknown_role_downgraded",
			slog.String("op", op),
			slog.String("user_id", id.String()),
			slog.String("role", string(pub.Role)),
		)
		pub.Role = models.RoleUser
	}

	if s.icache != nil {
		if err := s.icache.Set(ctx, pub, s.cacheTTL); err != nil {
			lg.Warn("identity_cache_set_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	return &pub, nil
}

func (s *Service) evictIdentity(ctx context.Context, id uuid.UUID) {
	if s.icache == nil {
		return
	}

	if err := s.icache.Delete(ctx, id); err != nil {
		log.From(ctx).Warn("identity_cache_delete_failed",
			slog.String("user_id", id.String()),
			slog.String("err", err.Error()),
		)
	}
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email, обрезает пробелы и приводит к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
