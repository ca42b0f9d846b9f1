package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFilterRouter(t *testing.T, h *harness) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := NewFilter(h.svc.cfg.Validator, h.bl, nil)

	r := gin.New()
	r.Use(f.Middleware())
	r.GET("/whoami", RequireAuthenticated(), func(c *gin.Context) {
		p, _ := CurrentPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"username": p.Username})
	})
	r.GET("/admin", RequireScope("user:manage"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doGet(r *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFilterAuthenticatesBearerToken(t *testing.T) {
	h := newHarness(t, nil)
	r := newFilterRouter(t, h)

	pair, err := h.svc.Login(context.Background(), loginInput())
	require.NoError(t, err)

	w := doGet(r, "/whoami", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}

func TestFilterMissingOrMalformedHeader(t *testing.T) {
	h := newHarness(t, nil)
	r := newFilterRouter(t, h)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "garbage"} {
		w := doGet(r, "/whoami", header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestFilterRejectsRefreshToken(t *testing.T) {
	h := newHarness(t, nil)
	r := newFilterRouter(t, h)

	pair, err := h.svc.Login(context.Background(), loginInput())
	require.NoError(t, err)

	w := doGet(r, "/whoami", "Bearer "+pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFilterRejectsBlacklistedToken(t *testing.T) {
	h := newHarness(t, nil)
	r := newFilterRouter(t, h)
	ctx := context.Background()

	pair, err := h.svc.Login(ctx, loginInput())
	require.NoError(t, err)

	claims, err := h.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, h.bl.Revoke(ctx, claims.ID, claims.ExpiresAt.Time))

	w := doGet(r, "/whoami", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFilterExpiredToken(t *testing.T) {
	h := newHarness(t, nil)
	r := newFilterRouter(t, h)

	pair, err := h.svc.Login(context.Background(), loginInput())
	require.NoError(t, err)

	h.clk.Advance(6 * time.Minute) // past the access ttl

	w := doGet(r, "/whoami", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireScope(t *testing.T) {
	h := newHarness(t, nil)
	r := newFilterRouter(t, h)

	pair, err := h.svc.Login(context.Background(), loginInput())
	require.NoError(t, err)

	// admin holds user:manage.
	w := doGet(r, "/admin", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	// Unauthenticated request gets 401, not 403.
	w = doGet(r, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPrincipalHelpers(t *testing.T) {
	p := &Principal{
		Username: "admin",
		Roles:    []string{"ROLE_ADMIN"},
		Scopes:   []string{"user:*", "profile:read"},
	}

	assert.True(t, p.HasRole("ROLE_ADMIN"))
	assert.False(t, p.HasRole("ROLE_USER"))
	assert.True(t, p.HasScope("user:manage"))
	assert.True(t, p.HasScope("profile:read"))
	assert.False(t, p.HasScope("report:export"))
}
