package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"askthedocs/internal/transport/http/response"
)

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
}

func NewHealthHandler(appName, env string, startedAt time.Time) *HealthHandler {
	return &HealthHandler{appName: appName, env: env, startedAt: startedAt}
}

func (h *HealthHandler) Check(c *gin.Context) {
	response.OK(c, gin.H{
		"app":    h.appName,
		"env":    h.env,
		"uptime": time.Since(h.startedAt).String(),
	})
}
