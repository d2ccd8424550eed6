// Package auth разбирает bearer-токены и кладёт личность пользователя
// в контекст запроса.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity аутентифицированный пользователь
type Identity struct {
	UserID uuid.UUID
	Role   model.Role
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == model.RoleAdmin
}

// Claims содержимое токена: sub = id пользователя
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens подпись и проверка HS256 токенов
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Issue выпускает токен на ttl
func (t *Tokens) Issue(userID uuid.UUID, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse проверяет подпись и срок действия
func (t *Tokens) Parse(raw string) (*Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	role := model.RoleUser
	if claims.Role == string(model.RoleAdmin) {
		role = model.RoleAdmin
	}

	return &Identity{UserID: userID, Role: role}, nil
}

type ctxKey struct{}

// WithIdentity кладёт личность в контекст
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext личность из контекста или nil для анонимного запроса
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Middleware разбирает токен, если он есть. Невалидный токен отклоняется,
// отсутствующий пропускается: решение принимает сервис.
func (t *Tokens) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c.Request())
			if errors.Is(err, ErrMissingToken) {
				return next(c)
			}

			id, err := t.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			req := c.Request()
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}
