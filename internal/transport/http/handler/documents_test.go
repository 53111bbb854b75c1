package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askthedocs/internal/app"
	"askthedocs/internal/loader"
)

func uploadFiles(t *testing.T, router *gin.Engine, token string, files map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestIngestTextUpload(t *testing.T) {
	provider := fakeProvider(t)
	defer provider.Close()
	router := newTestRouter(t, provider.URL)

	_, token := createSession(t, router)
	w, _ := doJSON(t, router, http.MethodPut, "/api/v1/sessions/credential", token,
		gin.H{"api_key": "sk-good"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := uploadFiles(t, router, token, map[string]string{
		"notes.txt": "gophers dig extensive burrow systems",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result app.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 1, result.IndexSize)
	assert.Empty(t, result.Failures)
}

func TestIngestRejectsUnsupportedFileType(t *testing.T) {
	provider := fakeProvider(t)
	defer provider.Close()
	router := newTestRouter(t, provider.URL)

	_, token := createSession(t, router)
	w, _ := doJSON(t, router, http.MethodPut, "/api/v1/sessions/credential", token,
		gin.H{"api_key": "sk-good"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = uploadFiles(t, router, token, map[string]string{
		"payload.exe": "not a document",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestWithoutCredential(t *testing.T) {
	provider := fakeProvider(t)
	defer provider.Close()
	router := newTestRouter(t, provider.URL)

	_, token := createSession(t, router)

	w, _ := uploadFiles(t, router, token, map[string]string{
		"notes.txt": "never embedded",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKindForFilename(t *testing.T) {
	cases := map[string]struct {
		kind loader.Kind
		ok   bool
	}{
		"report.PDF": {loader.KindPDF, true},
		"notes.txt":  {loader.KindText, true},
		"readme.md":  {loader.KindText, true},
		"image.png":  {"", false},
		"noext":      {"", false},
	}
	for name, want := range cases {
		kind, ok := kindForFilename(name)
		assert.Equal(t, want.ok, ok, name)
		assert.Equal(t, want.kind, kind, name)
	}
}
