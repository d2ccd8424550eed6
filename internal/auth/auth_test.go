package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens("secret")
	userID := uuid.New()

	raw, err := tokens.Issue(userID, model.RoleAdmin, time.Hour)
	require.NoError(t, err)

	id, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.True(t, id.IsAdmin())
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	userID := uuid.New()

	foreign, err := NewTokens("other").Issue(userID, model.RoleUser, time.Hour)
	require.NoError(t, err)
	_, err = NewTokens("secret").Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokens("secret").Issue(userID, model.RoleUser, -time.Minute)
	require.NoError(t, err)
	_, err = NewTokens("secret").Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("secret")
	userID := uuid.New()
	raw, err := tokens.Issue(userID, model.RoleUser, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.Use(tokens.Middleware())
	e.GET("/", func(c echo.Context) error {
		id := FromContext(c.Request().Context())
		if id == nil {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, id.UserID.String())
	})

	cases := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{name: "anonymous", code: http.StatusOK, body: "anonymous"},
		{name: "valid", header: "Bearer " + raw, code: http.StatusOK, body: userID.String()},
		{name: "invalid", header: "Bearer garbage", code: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}
