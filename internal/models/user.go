// models содержит доменные сущности подсистемы аутентификации.
// Эти типы используются слоями бизнес-логики, хранилища и транспорта.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя для авторизации.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid сообщает, известна ли роль системе.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Avatar — ссылка на изображение во внешнем хранилище.
type Avatar struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// User — модель пользователя в хранилище.
//
// Подсистема только читает пользователя (ID/Name/Email/Role) и никогда не отдаёт
// его наружу как есть: все ответы строятся через Public().
//
// Точка расширения: для принудительного logout-everywhere сюда добавляется
// счётчик TokenEpoch, который кладётся в claims и сверяется при проверке refresh.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	Avatar       *Avatar
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser — санитизированная проекция пользователя для ответов и контекста запроса.
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Avatar    *Avatar   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public отбрасывает хэш пароля и служебные поля.
func (u *User) Public() PublicUser {
	p := PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}

	if u.Avatar != nil {
		a := *u.Avatar
		p.Avatar = &a
	}

	return p
}
