package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/auth"
)

// AuthHandler serves the authentication endpoints.
type AuthHandler struct {
	svc    *auth.Service
	logger *zap.Logger
}

// NewAuthHandler creates the handler.
func NewAuthHandler(svc *auth.Service, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), auth.LoginInput{
		UsernameOrEmail: req.UsernameOrEmail,
		Password:        req.Password,
		RemoteAddr:      c.Request.RemoteAddr,
		ForwardedFor:    c.GetHeader("X-Forwarded-For"),
		CorrelationID:   correlationID(c),
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    pair.ExpiresAt,
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken, correlationID(c))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    pair.ExpiresAt,
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.svc.Profile(c.Request.Context(), p.Username)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		UserID:   user.ID,
		Username: p.Username,
		Roles:    p.Roles,
		Scopes:   p.Scopes,
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	if req.RefreshToken != "" {
		if err := h.svc.Logout(c.Request.Context(), req.RefreshToken, correlationID(c)); err != nil {
			h.writeDomainError(c, err)
			return
		}
	}

	// When the caller presented a bearer token, retire it too.
	if p, ok := auth.CurrentPrincipal(c); ok {
		if err := h.svc.RevokeAccessToken(c.Request.Context(), p); err != nil {
			h.writeDomainError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// Sessions handles GET /auth/sessions.
func (h *AuthHandler) Sessions(c *gin.Context) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	jtis, err := h.svc.ActiveSessions(c.Request.Context(), p.Username)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	if jtis == nil {
		jtis = []string{}
	}
	c.JSON(http.StatusOK, SessionsResponse{Sessions: jtis, Count: len(jtis)})
}

// RevokeSessions handles DELETE /auth/sessions.
func (h *AuthHandler) RevokeSessions(c *gin.Context) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.RevokeAllSessions(c.Request.Context(), p.Username, correlationID(c)); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangePassword handles POST /auth/password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	err := h.svc.ChangePassword(c.Request.Context(), p.Username, req.CurrentPassword, req.NewPassword, correlationID(c))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeDomainError translates a use-case error into the envelope. 429
// additionally carries Retry-After from the store's remaining TTL.
func (h *AuthHandler) writeDomainError(c *gin.Context, err error) {
	status := auth.HTTPStatus(err)

	var rl *auth.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(rl.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("correlation_id", correlationID(c)))
	}

	writeError(c, status, auth.ErrorCode(err))
}
