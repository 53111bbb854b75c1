package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempText(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTextFile(t *testing.T) {
	path := writeTempText(t, "notes.txt", "hello world, this is a document about gophers")

	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), []Source{{Kind: KindText, Locator: path}})

	require.Empty(t, failures)
	require.Len(t, chunks, 1)
	assert.Equal(t, "notes.txt", chunks[0].Source)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Contains(t, chunks[0].Content, "gophers")
}

func TestLoadChunksLongTextWithOverlap(t *testing.T) {
	path := writeTempText(t, "long.txt", strings.Repeat("abcdefghij", 30))

	l := New(100, 20)
	chunks, failures := l.Load(context.Background(), []Source{{Kind: KindText, Locator: path}})

	require.Empty(t, failures)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, "long.txt", c.Source)
	}
	// consecutive chunks share the overlap region
	first := []rune(chunks[0].Content)
	tail := string(first[len(first)-20:])
	assert.True(t, strings.HasPrefix(chunks[1].Content, tail))
}

func TestLoadContinuesPastFailingSource(t *testing.T) {
	good := writeTempText(t, "good.txt", "usable content here")

	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), []Source{
		{Kind: KindText, Locator: good},
		{Kind: KindText, Locator: filepath.Join(t.TempDir(), "missing.txt")},
	})

	require.Len(t, chunks, 1)
	require.Len(t, failures, 1)
	assert.Equal(t, KindText, failures[0].Source.Kind)
	assert.NotEmpty(t, failures[0].Reason)
}

func TestLoadEmptySourceList(t *testing.T) {
	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), nil)
	assert.Empty(t, chunks)
	assert.Empty(t, failures)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), []Source{{Kind: "carrier-pigeon", Locator: "x"}})
	assert.Empty(t, chunks)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Reason, "unsupported source kind")
}

func TestLoadEmptyFileReportsNoExtractableText(t *testing.T) {
	path := writeTempText(t, "empty.txt", "   \n\t  ")

	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), []Source{{Kind: KindText, Locator: path}})
	assert.Empty(t, chunks)
	require.Len(t, failures, 1)
	assert.Equal(t, "no extractable text", failures[0].Reason)
}

func TestLoadWebPageExtractsVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>t</title><script>var x = 1;</script></head>` +
			`<body><h1>Gopher Guide</h1><p>Burrows and tunnels.</p></body></html>`))
	}))
	defer srv.Close()

	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), []Source{{Kind: KindWeb, Locator: srv.URL}})

	require.Empty(t, failures)
	require.Len(t, chunks, 1)
	assert.Equal(t, srv.URL, chunks[0].Source)
	assert.Contains(t, chunks[0].Content, "Gopher Guide")
	assert.Contains(t, chunks[0].Content, "Burrows and tunnels.")
	assert.NotContains(t, chunks[0].Content, "var x")
}

func TestLoadWebPageNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	l := New(512, 64)
	chunks, failures := l.Load(context.Background(), []Source{{Kind: KindWeb, Locator: srv.URL}})
	assert.Empty(t, chunks)
	require.Len(t, failures, 1)
}

func TestChunkTextShortInput(t *testing.T) {
	pieces := chunkText("short", 512, 64)
	require.Len(t, pieces, 1)
	assert.Equal(t, "short", pieces[0])
}
