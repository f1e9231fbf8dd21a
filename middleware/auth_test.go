package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret")

// echoUser возвращает id пользователя из контекста
func echoUser(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte(userID))
}

func serveWithToken(token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/debts", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	AuthMiddleware(testKey)(http.HandlerFunc(echoUser)).ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := GenerateToken(testKey, "user-42", time.Hour)
	require.NoError(t, err)

	rr := serveWithToken(token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-42", rr.Body.String())
}

func TestAuthMiddlewareFallsBackToSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testKey)
	require.NoError(t, err)

	rr := serveWithToken(token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-7", rr.Body.String())
}

func TestAuthMiddlewareRejects(t *testing.T) {
	expired, err := GenerateToken(testKey, "user-42", -time.Minute)
	require.NoError(t, err)
	foreign, err := GenerateToken([]byte("other-secret"), "user-42", time.Hour)
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).SignedString(testKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong key", foreign},
		{"no user claim", noUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serveWithToken(tt.token)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS("https://app.buddiepay.test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/debts", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.buddiepay.test", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/debts", nil))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}
