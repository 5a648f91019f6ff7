package handlers

import (
	"net/http"

	"layover-match/internal/auth"
	"layover-match/internal/middleware"
	"layover-match/internal/session"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth     *auth.Service
	sessions *session.Manager
}

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func NewAuthHandler(authService *auth.Service, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{auth: authService, sessions: sessions}
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	grant, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondGrant(c, http.StatusCreated, grant)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	grant, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondGrant(c, http.StatusOK, grant)
}

func (h *AuthHandler) respondGrant(c *gin.Context, status int, grant *auth.Grant) {
	sess, err := h.sessions.Start(c.Request.Context(), grant.Account.ID, grant.ExpiresAt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(status, gin.H{
		"access_token": grant.Token,
		"expires_at":   grant.ExpiresAt,
		"account":      grant.Account,
		"session":      sess.Identity(),
	})
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.auth.SignOut(ctx, c.GetString(middleware.TokenKey)); err != nil {
		respondError(c, err)
		return
	}
	if err := h.sessions.SignOut(ctx, c.GetString(middleware.UserIDKey)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

// CurrentSession reports the caller's identity and session state.
func (h *AuthHandler) CurrentSession(c *gin.Context) {
	sess, ok := currentSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess.Identity()})
}

// currentSession resolves the caller's session or writes the error response.
func currentSession(c *gin.Context, sessions *session.Manager) (*session.Session, bool) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		respondError(c, errNoSession)
		return nil, false
	}
	sess, err := sessions.Session(c.Request.Context(), userID, c.GetTime(middleware.ExpiresAtKey))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

// profiledSession is currentSession for routes that need a completed profile.
func profiledSession(c *gin.Context, sessions *session.Manager) (*session.Session, bool) {
	sess, ok := currentSession(c, sessions)
	if !ok {
		return nil, false
	}
	if sess.State() != session.StateAuthenticatedWithProfile {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errNoProfile.Error()})
		return nil, false
	}
	return sess, true
}
