package http

import (
	"github.com/gin-gonic/gin"

	"askthedocs/internal/bootstrap"
	"askthedocs/internal/transport/http/handler"
	"askthedocs/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt)
	router.GET("/healthz", healthHandler.Check)

	sessionHandler := handler.NewSessionHandler(app.Sessions, app.Config.Auth.JWTSecret)
	documentHandler := handler.NewDocumentHandler(app.Sessions, app.Ingest)
	chatHandler := handler.NewChatHandler(app.Sessions, app.Chat, app.Config.RAG.Streaming)

	v1 := router.Group("/api/v1")
	v1.POST("/sessions", sessionHandler.Create)

	authed := v1.Group("")
	authed.Use(middleware.SessionAuth(app.Config.Auth.JWTSecret))
	authed.PUT("/sessions/credential", sessionHandler.SetCredential)
	authed.DELETE("/sessions", sessionHandler.Delete)
	authed.POST("/documents", documentHandler.Ingest)
	authed.POST("/chat", chatHandler.Query)
	authed.GET("/history", chatHandler.History)

	return router
}
