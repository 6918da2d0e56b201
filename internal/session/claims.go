package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims то, что клиент может прочитать из токена без проверки подписи
type Claims struct {
	Subject   string
	Username  string
	Email     string
	ExpiresAt time.Time
}

// ParseClaims читает claims из JWT; для непрозрачного токена возвращает false
func ParseClaims(token string) (Claims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, false
	}

	out := Claims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	for _, key := range []string{"username", "user_name", "name"} {
		if v, ok := claims[key].(string); ok && v != "" {
			out.Username = v
			break
		}
	}
	if v, ok := claims["email"].(string); ok {
		out.Email = v
	}

	return out, true
}

// Expired сообщает, что срок токена известен и уже прошел
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
