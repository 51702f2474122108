package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Claims — полезная нагрузка bearer-токена: sub — идентификатор пользователя, role — его роль.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator проверяет HS256-токены. Выпуск токенов находится вне сервиса.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Authenticate разбирает токен и возвращает актора или ошибку, оборачивающую ErrUnauthorized.
func (a *Authenticator) Authenticate(raw string) (domain.Actor, error) {
	if len(a.secret) == 0 {
		return domain.Actor{}, fmt.Errorf("%w: authentication is not configured", domain.ErrUnauthorized)
	}
	if raw == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}

	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}

	return domain.Actor{UserID: subject, Role: role}, nil
}

// Sign выпускает токен для актора. Используется в тестах и нагрузочном прогоне.
func (a *Authenticator) Sign(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type actorKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
