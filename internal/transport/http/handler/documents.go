package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"askthedocs/internal/app"
	"askthedocs/internal/loader"
	"askthedocs/internal/transport/http/middleware"
	"askthedocs/internal/transport/http/response"
)

const maxUploadSize = 10 << 20 // 10 MB per file

type DocumentHandler struct {
	sessions *app.SessionService
	ingest   *app.IngestService
}

func NewDocumentHandler(sessions *app.SessionService, ingest *app.IngestService) *DocumentHandler {
	return &DocumentHandler{sessions: sessions, ingest: ingest}
}

// Ingest accepts a multipart form: "files" (PDF or TXT uploads) and "links"
// (newline-separated URLs). Files are stored into the session workspace
// before loading so the source of every chunk stays inside the session's
// subtree.
func (h *DocumentHandler) Ingest(c *gin.Context) {
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

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}

	var sources []loader.Source
	for _, file := range form.File["files"] {
		if file.Size > maxUploadSize {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest,
				"file too large (max 10MB): "+file.Filename)
			return
		}
		kind, ok := kindForFilename(file.Filename)
		if !ok {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest,
				"unsupported file type (pdf and txt only): "+file.Filename)
			return
		}

		dst := filepath.Join(sess.WorkDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "store upload failed")
			return
		}
		sources = append(sources, loader.Source{Kind: kind, Locator: dst})
	}

	for _, line := range strings.Split(c.PostForm("links"), "\n") {
		if link := strings.TrimSpace(line); link != "" {
			sources = append(sources, loader.Source{Kind: loader.KindWeb, Locator: link})
		}
	}

	result, err := h.ingest.Ingest(c.Request.Context(), sess, sources)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrCredentialMissing):
			response.Error(c, http.StatusUnauthorized, response.CodeCredentialInvalid, "set an api key before ingesting documents")
		case errors.Is(err, app.ErrEmbeddingProvider):
			response.Error(c, http.StatusBadGateway, response.CodeProviderFailure, "embedding provider failure: "+err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}

	response.OK(c, result)
}

func kindForFilename(name string) (loader.Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return loader.KindPDF, true
	case ".txt", ".text", ".md":
		return loader.KindText, true
	}
	return "", false
}
