package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askthedocs/internal/ai"
	"askthedocs/internal/model"
	"askthedocs/internal/vectorstore"
)

// recordingPublisher captures archived exchanges.
type recordingPublisher struct {
	mu   sync.Mutex
	recs []model.HistoryRecord
}

func (p *recordingPublisher) Publish(_ context.Context, rec model.HistoryRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func (p *recordingPublisher) records() []model.HistoryRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.HistoryRecord, len(p.recs))
	copy(out, p.recs)
	return out
}

// fakeLLM answers embeddings and chat completions. failRAG rejects any
// completion whose prompt carries retrieved context; failAll rejects every
// completion.
type fakeLLM struct {
	failRAG bool
	failAll bool
}

func (f *fakeLLM) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input interface{} `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"embedding": []float32{1, 0}}},
			})
		case "/chat/completions":
			var req struct {
				Stream   bool             `json:"stream"`
				Messages []ai.ChatMessage `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			grounded := false
			for _, m := range req.Messages {
				if strings.Contains(m.Content, "Context:") {
					grounded = true
				}
			}
			if f.failAll || (f.failRAG && grounded) {
				http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
				return
			}

			answer := "plain answer"
			if grounded {
				answer = "grounded answer"
			}
			if req.Stream {
				w.Header().Set("Content-Type", "text/event-stream")
				fl := w.(http.Flusher)
				for _, frag := range []string{answer[:4], answer[4:]} {
					payload, _ := json.Marshal(map[string]interface{}{
						"choices": []map[string]interface{}{
							{"delta": map[string]string{"content": frag}},
						},
					})
					fmt.Fprintf(w, "data: %s\n\n", payload)
					fl.Flush()
				}
				fmt.Fprint(w, "data: [DONE]\n\n")
				fl.Flush()
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"content": answer}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestChatService(baseURL string, pub HistoryPublisher) *ChatService {
	return NewChatService(
		ChatServiceConfig{
			LLMBaseURL:     baseURL,
			ChatModel:      "chat-model",
			EmbeddingModel: "embed-model",
			TopK:           2,
		},
		ai.NewClient(5*time.Second),
		pub,
		nil,
		nil,
	)
}

func sessionWithIndex(t *testing.T) *Session {
	t.Helper()
	sess := newTestSession(t)
	sess.SetAPIKey("sk-x")

	ix := vectorstore.New()
	require.NoError(t, ix.Add(
		[]model.Chunk{
			{Source: "doc.txt", Seq: 0, Content: "gophers dig burrows"},
			{Source: "doc.txt", Seq: 1, Content: "tunnels branch underground"},
		},
		[][]float32{{1, 0}, {0.9, 0.1}},
	))
	sess.SetIndex(ix)
	return sess
}

func TestHandleQueryRejectsEmptyQuestion(t *testing.T) {
	svc := newTestChatService("http://127.0.0.1:0", &recordingPublisher{})
	sess := newTestSession(t)
	sess.SetAPIKey("sk-x")

	_, err := svc.HandleQuery(context.Background(), sess, QueryInput{Question: "   "}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHandleQueryRequiresCredential(t *testing.T) {
	svc := newTestChatService("http://127.0.0.1:0", &recordingPublisher{})
	sess := newTestSession(t)

	_, err := svc.HandleQuery(context.Background(), sess, QueryInput{Question: "hi"}, nil)
	assert.ErrorIs(t, err, ErrCredentialMissing)
}

func TestHandleQueryPlainChatWithoutIndex(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{}).handler(t))
	defer srv.Close()

	pub := &recordingPublisher{}
	svc := newTestChatService(srv.URL, pub)
	sess := newTestSession(t)
	sess.SetAPIKey("sk-x")

	res, err := svc.HandleQuery(context.Background(), sess, QueryInput{Question: "hello", UseRAG: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "plain answer", res.Answer)
	assert.Empty(t, res.Sources)
	assert.False(t, res.Fallback)

	history := sess.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Question)
	assert.Equal(t, "plain answer", history[0].Answer)
	require.Len(t, pub.records(), 1)
	assert.Equal(t, sess.ID, pub.records()[0].SessionID)
}

func TestHandleQueryWithRetrieval(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{}).handler(t))
	defer srv.Close()

	pub := &recordingPublisher{}
	svc := newTestChatService(srv.URL, pub)
	sess := sessionWithIndex(t)

	res, err := svc.HandleQuery(context.Background(), sess,
		QueryInput{Question: "where do gophers live", UseRAG: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "grounded answer", res.Answer)
	assert.False(t, res.Fallback)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "gophers dig burrows", res.Sources[0].Content)
}

func TestHandleQueryRetrievalOffSkipsIndex(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{}).handler(t))
	defer srv.Close()

	svc := newTestChatService(srv.URL, &recordingPublisher{})
	sess := sessionWithIndex(t)

	res, err := svc.HandleQuery(context.Background(), sess,
		QueryInput{Question: "hello", UseRAG: false}, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", res.Answer)
	assert.Empty(t, res.Sources)
}

func TestHandleQueryFallbackRecordsOneEntry(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{failRAG: true}).handler(t))
	defer srv.Close()

	pub := &recordingPublisher{}
	svc := newTestChatService(srv.URL, pub)
	sess := sessionWithIndex(t)

	res, err := svc.HandleQuery(context.Background(), sess,
		QueryInput{Question: "where do gophers live", UseRAG: true}, nil)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Empty(t, res.Sources)
	assert.Equal(t, "plain answer", res.Answer)

	assert.Len(t, sess.History(0), 1)
	assert.Len(t, pub.records(), 1)
}

func TestHandleQueryTotalFailureRecordsNothing(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{failAll: true}).handler(t))
	defer srv.Close()

	pub := &recordingPublisher{}
	svc := newTestChatService(srv.URL, pub)
	sess := sessionWithIndex(t)

	_, err := svc.HandleQuery(context.Background(), sess,
		QueryInput{Question: "where do gophers live", UseRAG: true}, nil)
	assert.ErrorIs(t, err, ErrGenerationFailed)

	assert.Empty(t, sess.History(0))
	assert.Empty(t, pub.records())
}

func TestHandleQueryStreaming(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{}).handler(t))
	defer srv.Close()

	svc := newTestChatService(srv.URL, &recordingPublisher{})
	sess := sessionWithIndex(t)

	var chunks []string
	res, err := svc.HandleQuery(context.Background(), sess,
		QueryInput{Question: "where do gophers live", UseRAG: true, Stream: true},
		func(chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, "grounded answer", res.Answer)
	assert.Equal(t, "grounded answer", strings.Join(chunks, ""))
	assert.Greater(t, len(chunks), 1)
}

func TestHandleQueryAbandonedStreamRecordsNothing(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{}).handler(t))
	defer srv.Close()

	pub := &recordingPublisher{}
	svc := newTestChatService(srv.URL, pub)
	sess := newTestSession(t)
	sess.SetAPIKey("sk-x")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.HandleQuery(ctx, sess,
		QueryInput{Question: "hello", Stream: true},
		func(string) error {
			cancel()
			return ctx.Err()
		})
	assert.Error(t, err)

	assert.Empty(t, sess.History(0))
	assert.Empty(t, pub.records())
}

func TestHandleQueryHistoryOrder(t *testing.T) {
	srv := httptest.NewServer((&fakeLLM{}).handler(t))
	defer srv.Close()

	svc := newTestChatService(srv.URL, &recordingPublisher{})
	sess := newTestSession(t)
	sess.SetAPIKey("sk-x")

	for _, q := range []string{"first", "second", "third"} {
		_, err := svc.HandleQuery(context.Background(), sess, QueryInput{Question: q}, nil)
		require.NoError(t, err)
	}

	history := sess.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Question)
	assert.Equal(t, "third", history[2].Question)

	limited := sess.History(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[0].Question)
}

func TestTruncateContextDropsLowestRanked(t *testing.T) {
	svc := NewChatService(ChatServiceConfig{MaxContextChars: 25}, nil, nil, nil, nil)

	hits := []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Content: strings.Repeat("a", 20)}, Score: 0.9},
		{Chunk: model.Chunk{Content: strings.Repeat("b", 20)}, Score: 0.5},
	}
	kept := svc.truncateContext(hits)
	require.Len(t, kept, 1)
	assert.Equal(t, strings.Repeat("a", 20), kept[0].Content)

	// The best hit survives even when it alone exceeds the budget.
	oversized := []vectorstore.ScoredChunk{
		{Chunk: model.Chunk{Content: strings.Repeat("c", 100)}, Score: 0.9},
	}
	assert.Len(t, svc.truncateContext(oversized), 1)
}
