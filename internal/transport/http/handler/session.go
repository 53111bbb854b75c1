package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"askthedocs/internal/ai"
	"askthedocs/internal/app"
	"askthedocs/internal/pkg/jwtutil"
	"askthedocs/internal/transport/http/middleware"
	"askthedocs/internal/transport/http/response"
)

type SessionHandler struct {
	sessions  *app.SessionService
	jwtSecret string
}

type SetCredentialRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

func NewSessionHandler(sessions *app.SessionService, jwtSecret string) *SessionHandler {
	return &SessionHandler{sessions: sessions, jwtSecret: jwtSecret}
}

func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		return
	}

	token, err := jwtutil.GenerateToken(h.jwtSecret, sess.ExpiresAt, sess.ID)
	if err != nil {
		_ = h.sessions.Delete(c.Request.Context(), sess.ID)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "issue session token failed")
		return
	}

	response.OK(c, gin.H{
		"session_id": sess.ID,
		"token":      token,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *SessionHandler) SetCredential(c *gin.Context) {
	sessionID, ok := middleware.SessionIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SetCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	err := h.sessions.ValidateCredential(c.Request.Context(), sessionID, req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrCredentialInvalid):
			response.Error(c, http.StatusUnauthorized, response.CodeCredentialInvalid, "api key rejected by provider")
		case errors.Is(err, ai.ErrCredentialTimeout):
			response.Error(c, http.StatusGatewayTimeout, response.CodeProviderTimeout, "credential validation timed out")
		case sessionLifecycleError(c, err):
		default:
			response.Error(c, http.StatusBadGateway, response.CodeProviderFailure, "credential validation failed")
		}
		return
	}

	response.OK(c, gin.H{"validated": true})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID, ok := middleware.SessionIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

// sessionLifecycleError writes the response for not-found/expired sessions
// and reports whether it handled the error.
func sessionLifecycleError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found")
		return true
	case errors.Is(err, app.ErrSessionExpired):
		response.Error(c, http.StatusGone, response.CodeSessionExpired, "session expired")
		return true
	}
	return false
}
