package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askthedocs/internal/pkg/jwtutil"
)

func newTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", SessionAuth(secret), func(c *gin.Context) {
		id, ok := SessionIDFromContext(c)
		if !ok {
			c.String(http.StatusInternalServerError, "no session id in context")
			return
		}
		c.String(http.StatusOK, id)
	})
	return r
}

func TestSessionAuthValidToken(t *testing.T) {
	token, err := jwtutil.GenerateToken("secret", time.Now().Add(time.Hour), "sess-42")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newTestRouter("secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-42", w.Body.String())
}

func TestSessionAuthMissingHeader(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	newTestRouter("secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAuthWrongScheme(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	newTestRouter("secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAuthForgedToken(t *testing.T) {
	token, err := jwtutil.GenerateToken("other-secret", time.Now().Add(time.Hour), "sess-42")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newTestRouter("secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
