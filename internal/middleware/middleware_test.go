package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, role models.Role, clientID int64, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(42),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role:     role,
		ClientID: clientID,
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func protected(roles ...models.Role) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(strconv.FormatInt(claims.ClientID, 10)))
	})
	var h http.Handler = inner
	if len(roles) > 0 {
		h = RequireRole(roles...)(h)
	}
	return AuthMiddleware(func(token string) (*service.Claims, error) {
		return service.ParseToken(token, testSecret, time.Now)
	})(h)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", models.RoleClient, 5, time.Hour), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, models.RoleClient, 5, -time.Hour), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, models.RoleClient, 5, time.Hour), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected().ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "5", rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, models.RoleClient, 5, time.Hour))
	rec := httptest.NewRecorder()
	protected(models.RoleEmployee, models.RoleAdmin).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, models.RoleAdmin, 0, time.Hour))
	rec = httptest.NewRecorder()
	protected(models.RoleEmployee, models.RoleAdmin).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndLogging(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	var seen string
	h := RequestID(Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusCreated)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRecover(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
