package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slr-assistant-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSessionAuth(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1)
	r := gin.New()
	r.GET("/me", SessionAuth(jwtManager), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SessionIDKey))
	})

	tok, err := jwtManager.GenerateToken("sess-1")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + tok, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "sess-1", w.Body.String())
			}
		})
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)

	newRouter := func(keyHash string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", AdminAuthMiddleware(keyHash), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}
	do := func(r *gin.Engine, key string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if key != "" {
			req.Header.Set(AdminKeyHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, do(newRouter(""), "letmein"))
	r := newRouter(string(hash))
	assert.Equal(t, http.StatusUnauthorized, do(r, ""))
	assert.Equal(t, http.StatusForbidden, do(r, "wrong"))
	assert.Equal(t, http.StatusNoContent, do(r, "letmein"))
}

func TestRequestLoggerKeepsBody(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		var body struct {
			Text string `json:"text"`
		}
		require.NoError(t, c.ShouldBindJSON(&body))
		c.String(http.StatusOK, body.Text)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"text":"seawall"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "seawall", w.Body.String())
}
