package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе/регистрации/обновлении сессии.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, подписанный отдельным секретом,
//     используется только для выпуска новой пары;
//   - AccessExpiresAt/RefreshExpiresAt — моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
