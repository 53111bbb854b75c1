package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"askthedocs/internal/app"
	"askthedocs/internal/transport/http/middleware"
	"askthedocs/internal/transport/http/response"
)

type ChatHandler struct {
	sessions         *app.SessionService
	chat             *app.ChatService
	defaultStreaming bool
}

type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	UseRAG   bool   `json:"use_rag"`
	Stream   *bool  `json:"stream"`
	TopK     int    `json:"top_k"`
}

func NewChatHandler(sessions *app.SessionService, chat *app.ChatService, defaultStreaming bool) *ChatHandler {
	return &ChatHandler{sessions: sessions, chat: chat, defaultStreaming: defaultStreaming}
}

// Query answers one question. With streaming on, fragments go out as SSE
// "chunk" events followed by a final "done" event carrying the full result;
// otherwise the result returns as one JSON body.
func (h *ChatHandler) Query(c *gin.Context) {
	sessionID, ok := middleware.SessionIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		if !sessionLifecycleError(c, err) {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "resolve session failed")
		}
		return
	}
	h.sessions.Touch(sess)

	streaming := h.defaultStreaming
	if req.Stream != nil {
		streaming = *req.Stream
	}

	input := app.QueryInput{
		Question: req.Question,
		UseRAG:   req.UseRAG,
		Stream:   streaming,
		TopK:     req.TopK,
	}

	if !streaming {
		result, err := h.chat.HandleQuery(c.Request.Context(), sess, input, nil)
		if err != nil {
			h.writeQueryError(c, err)
			return
		}
		response.OK(c, result)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	result, err := h.chat.HandleQuery(c.Request.Context(), sess, input, func(chunk string) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		c.SSEvent("chunk", gin.H{"content": chunk})
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		c.SSEvent("error", gin.H{"message": userFacingQueryError(err)})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", result)
	c.Writer.Flush()
}

// History returns the session's conversation history; "limit" bounds the
// number of most recent entries.
func (h *ChatHandler) History(c *gin.Context) {
	sessionID, ok := middleware.SessionIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		if !sessionLifecycleError(c, err) {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "resolve session failed")
		}
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries := h.chat.GetHistory(c.Request.Context(), sess, limit)
	response.OK(c, gin.H{"entries": entries})
}

func (h *ChatHandler) writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "question must not be empty")
	case errors.Is(err, app.ErrCredentialMissing):
		response.Error(c, http.StatusUnauthorized, response.CodeCredentialInvalid, "set an api key before asking questions")
	case errors.Is(err, app.ErrGenerationFailed):
		response.Error(c, http.StatusBadGateway, response.CodeProviderFailure, "the model could not produce an answer, please retry")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
	}
}

func userFacingQueryError(err error) string {
	switch {
	case errors.Is(err, app.ErrCredentialMissing):
		return "set an api key before asking questions"
	case errors.Is(err, app.ErrGenerationFailed):
		return "the model could not produce an answer, please retry"
	default:
		return "query failed"
	}
}
