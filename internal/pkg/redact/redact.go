package redact

import "strings"

// Email маскирует локальную часть адреса, сохраняя первые две руны и домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := []rune(parts[0]), parts[1]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}

	return "***@" + domain
}

// Token оставляет от токена только хвост подписи: по нему можно
// сопоставить записи логов, но нельзя восстановить сам токен.
func Token(tok string) string {
	r := []rune(tok)
	if len(r) < 16 {
		return "[REDACTED_TOKEN]"
	}

	return "[REDACTED_TOKEN]…" + string(r[len(r)-6:])
}
