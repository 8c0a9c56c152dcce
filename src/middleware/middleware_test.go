package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTAuthMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	handler := JWTAuthMiddleware(okHandler())

	t.Run("valid token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", jwt.MapClaims{"client_id": "dashboard"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", jwt.MapClaims{"client_id": "dashboard"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing client id rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", jwt.MapClaims{"sub": "x"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestReadOnlyMiddleware(t *testing.T) {
	handler := ReadOnlyMiddleware(true)(okHandler())

	t.Run("get allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("mutation blocked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/rules", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("ingest stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/transactions/ingest", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled mode passes everything", func(t *testing.T) {
		open := ReadOnlyMiddleware(false)(okHandler())
		req := httptest.NewRequest(http.MethodDelete, "/api/rules/abc", nil)
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
