package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"askthedocs/internal/ai"
	"askthedocs/internal/model"
	"askthedocs/internal/vectorstore"
)

const (
	ragSystemPrompt = "You are a helpful assistant. Answer the user's question based only on the " +
		"following context. If the context does not contain enough information, say so. " +
		"Do not make up facts."
	chatSystemPrompt = "You are a concise and helpful AI assistant."
)

// HistoryPublisher archives a completed exchange, either directly to the
// database or through the message broker.
type HistoryPublisher interface {
	Publish(ctx context.Context, rec model.HistoryRecord) error
}

// HistoryCache is the optional redis layer in front of the history archive.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.HistoryEntry, bool, error)
	SetHistory(ctx context.Context, sessionID string, entries []model.HistoryEntry) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// ChatServiceConfig bundles the generation knobs.
type ChatServiceConfig struct {
	LLMBaseURL      string
	ChatModel       string
	EmbeddingModel  string
	TopK            int
	MaxContextChars int
	MaxHistory      int
	EmbedTimeout    time.Duration
}

// ChatService is the conversation orchestrator: it decides whether a query
// goes through retrieval, calls the generator, falls back to plain chat
// when document-conditioned generation fails, and records exactly one
// history entry per completed query.
type ChatService struct {
	cfg       ChatServiceConfig
	aiClient  *ai.Client
	publisher HistoryPublisher
	cache     HistoryCache // may be nil
	logger    *zap.Logger
}

// QueryInput carries one user query and the interface-layer toggles.
type QueryInput struct {
	Question string
	UseRAG   bool
	Stream   bool
	TopK     int
}

// QueryResult is the final answer plus the chunks that conditioned it.
type QueryResult struct {
	Answer   string        `json:"answer"`
	Sources  []model.Chunk `json:"sources,omitempty"`
	Fallback bool          `json:"fallback"`
}

func NewChatService(cfg ChatServiceConfig, aiClient *ai.Client, publisher HistoryPublisher, cache HistoryCache, logger *zap.Logger) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 6000
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		cfg:       cfg,
		aiClient:  aiClient,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
	}
}

// HandleQuery answers one query for the session. Queries on the same
// session are serialized; streaming fragments flow through onChunk as they
// arrive. An abandoned stream (ctx cancelled, onChunk error) records
// nothing; a completed answer records exactly one history entry.
func (s *ChatService) HandleQuery(ctx context.Context, sess *Session, in QueryInput, onChunk func(string) error) (*QueryResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, ErrInvalidInput
	}
	apiKey := sess.APIKey()
	if apiKey == "" {
		return nil, ErrCredentialMissing
	}

	sess.queryMu.Lock()
	defer sess.queryMu.Unlock()

	chatCfg := ai.ChatConfig{
		BaseURL: s.cfg.LLMBaseURL,
		APIKey:  apiKey,
		Model:   s.cfg.ChatModel,
	}

	result := &QueryResult{}
	var answer string
	answered := false

	if hits := s.retrieve(ctx, sess, in, apiKey); len(hits) > 0 {
		contextChunks := s.truncateContext(hits)
		messages := s.ragMessages(contextChunks, question)

		var err error
		answer, err = s.generate(ctx, chatCfg, messages, in.Stream, onChunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("document-conditioned generation failed, falling back to plain chat",
				zap.String("session_id", sess.ID), zap.Error(err))
			result.Fallback = true
		} else {
			answered = true
			result.Sources = contextChunks
		}
	}

	if !answered {
		var err error
		answer, err = s.generate(ctx, chatCfg, s.chatMessages(sess, question), in.Stream, onChunk)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}
	result.Answer = answer

	s.recordExchange(ctx, sess, question, answer)
	return result, nil
}

// GetHistory returns the session's conversation history, newest last.
func (s *ChatService) GetHistory(ctx context.Context, sess *Session, limit int) []model.HistoryEntry {
	entries := sess.History(limit)
	if s.cache != nil && limit <= 0 {
		if dirty, err := s.cache.IsDirty(ctx, sess.ID); err == nil && !dirty {
			_ = s.cache.SetHistory(ctx, sess.ID, entries)
		}
	}
	return entries
}

// retrieve returns ranked context chunks, or nil when retrieval is off,
// no index exists, or the query embedding fails (plain chat takes over).
func (s *ChatService) retrieve(ctx context.Context, sess *Session, in QueryInput, apiKey string) []vectorstore.ScoredChunk {
	if !in.UseRAG {
		return nil
	}
	ix := sess.Index()
	if ix == nil || ix.Len() == 0 {
		return nil
	}

	topK := in.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	embCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()
	queryVec, err := s.aiClient.Embed(embCtx, ai.EmbeddingConfig{
		BaseURL: s.cfg.LLMBaseURL,
		APIKey:  apiKey,
		Model:   s.cfg.EmbeddingModel,
	}, in.Question)
	if err != nil {
		s.logger.Warn("query embedding failed, answering without context",
			zap.String("session_id", sess.ID), zap.Error(err))
		return nil
	}

	return ix.Search(queryVec, topK)
}

// truncateContext keeps as many chunks as fit the input budget, dropping
// the lowest-ranked first.
func (s *ChatService) truncateContext(hits []vectorstore.ScoredChunk) []model.Chunk {
	var out []model.Chunk
	used := 0
	for _, hit := range hits {
		n := len(hit.Chunk.Content)
		if used+n > s.cfg.MaxContextChars && len(out) > 0 {
			break
		}
		out = append(out, hit.Chunk)
		used += n
	}
	return out
}

func (s *ChatService) ragMessages(contextChunks []model.Chunk, question string) []ai.ChatMessage {
	var b strings.Builder
	b.WriteString("Context:")
	for _, c := range contextChunks {
		b.WriteString("\n---\n")
		b.WriteString(c.Content)
	}
	b.WriteString("\n---")
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")

	return []ai.ChatMessage{
		{Role: "system", Content: ragSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func (s *ChatService) chatMessages(sess *Session, question string) []ai.ChatMessage {
	recent := sess.History(s.cfg.MaxHistory)
	messages := make([]ai.ChatMessage, 0, 2*len(recent)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: chatSystemPrompt})
	for _, entry := range recent {
		messages = append(messages,
			ai.ChatMessage{Role: "user", Content: entry.Question},
			ai.ChatMessage{Role: "assistant", Content: entry.Answer},
		)
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

func (s *ChatService) generate(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, stream bool, onChunk func(string) error) (string, error) {
	if stream && onChunk != nil {
		return s.aiClient.StreamComplete(ctx, cfg, messages, onChunk)
	}
	return s.aiClient.Complete(ctx, cfg, messages)
}

// recordExchange appends the history entry and archives it. Archive
// failures are logged, not surfaced: the answer already reached the user.
func (s *ChatService) recordExchange(ctx context.Context, sess *Session, question, answer string) {
	entry := model.HistoryEntry{
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now(),
	}
	sess.AppendHistory(entry)

	if s.cache != nil {
		_ = s.cache.MarkDirty(ctx, sess.ID)
		_ = s.cache.DeleteHistory(ctx, sess.ID)
	}
	if s.publisher != nil {
		rec := model.HistoryRecord{
			SessionID: sess.ID,
			Question:  entry.Question,
			Answer:    entry.Answer,
			CreatedAt: entry.CreatedAt,
		}
		if err := s.publisher.Publish(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Error("archive history entry failed",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
}
