package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, auth *Authenticator, header string, handler echo.HandlerFunc, extra ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/", handler, append([]echo.MiddlewareFunc{auth.Middleware}, extra...)...)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SetsUserID(t *testing.T) {
	auth := NewAuthenticator("secret")
	userID := uuid.New()
	token, err := auth.Issue(userID, RoleUser, time.Hour)
	require.NoError(t, err)

	var seen uuid.UUID
	rec := serve(t, auth, "Bearer "+token, func(c echo.Context) error {
		id, err := GetUserID(c)
		require.NoError(t, err)
		seen = id
		return c.NoContent(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userID, seen)
}

func TestMiddleware_Rejects(t *testing.T) {
	auth := NewAuthenticator("secret")
	other := NewAuthenticator("other-secret")
	userID := uuid.New()

	wrongKey, err := other.Issue(userID, RoleUser, time.Hour)
	require.NoError(t, err)
	expired, err := auth.Issue(userID, RoleUser, -time.Minute)
	require.NoError(t, err)
	noUser, err := auth.Issue(uuid.Nil, RoleUser, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{UserID: userID}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Token " + wrongKey},
		{"wrong key", "Bearer " + wrongKey},
		{"expired", "Bearer " + expired},
		{"no user id", "Bearer " + noUser},
		{"alg none", "Bearer " + none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, auth, tt.header, func(c echo.Context) error {
				t.Fatal("handler must not run")
				return nil
			})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	auth := NewAuthenticator("secret")
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	userToken, err := auth.Issue(uuid.New(), RoleUser, time.Hour)
	require.NoError(t, err)
	adminToken, err := auth.Issue(uuid.New(), RoleAdmin, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(t, auth, "Bearer "+userToken, ok, AdminMiddleware).Code)
	assert.Equal(t, http.StatusOK, serve(t, auth, "Bearer "+adminToken, ok, AdminMiddleware).Code)
}
