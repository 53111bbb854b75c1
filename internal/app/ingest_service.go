package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"askthedocs/internal/ai"
	"askthedocs/internal/loader"
	"askthedocs/internal/model"
	"askthedocs/internal/vectorstore"
)

// IngestServiceConfig bundles the embedding knobs.
type IngestServiceConfig struct {
	LLMBaseURL     string
	EmbeddingModel string
	BatchSize      int
	EmbedTimeout   time.Duration
}

// IngestService turns uploaded files and links into an embedded chunk index
// attached to the owning session.
type IngestService struct {
	cfg      IngestServiceConfig
	loader   *loader.Loader
	aiClient *ai.Client
	logger   *zap.Logger
}

// IngestResult reports what a single ingest call accomplished, including
// the sources that failed without aborting the rest.
type IngestResult struct {
	ChunkCount int                  `json:"chunk_count"`
	IndexSize  int                  `json:"index_size"`
	Failures   []loader.SourceError `json:"failures,omitempty"`
}

func NewIngestService(cfg IngestServiceConfig, ld *loader.Loader, aiClient *ai.Client, logger *zap.Logger) *IngestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		cfg:      cfg,
		loader:   ld,
		aiClient: aiClient,
		logger:   logger,
	}
}

// Ingest loads the sources, embeds every chunk and extends the session's
// index, persisting the result into the session workspace. A failing source
// is reported, not fatal; a failing embedding batch fails the whole call
// and leaves the session's index untouched.
func (s *IngestService) Ingest(ctx context.Context, sess *Session, sources []loader.Source) (*IngestResult, error) {
	apiKey := sess.APIKey()
	if apiKey == "" {
		return nil, ErrCredentialMissing
	}

	chunks, failures := s.loader.Load(ctx, sources)

	sess.ingestMu.Lock()
	defer sess.ingestMu.Unlock()

	if len(chunks) == 0 {
		size := 0
		if ix := sess.Index(); ix != nil {
			size = ix.Len()
		}
		return &IngestResult{ChunkCount: 0, IndexSize: size, Failures: failures}, nil
	}

	vectors, err := s.embedAll(ctx, apiKey, chunks)
	if err != nil {
		return nil, err
	}

	// Build on a private copy so callers never observe a half-extended
	// index when anything below fails.
	var candidate *vectorstore.Index
	if existing := sess.Index(); existing != nil {
		candidate = existing.Clone()
	} else if restored, err := vectorstore.Load(sess.IndexDir()); err == nil {
		candidate = restored
	} else if errors.Is(err, vectorstore.ErrIndexNotFound) {
		candidate = vectorstore.New()
	} else {
		return nil, err
	}

	if err := candidate.Add(chunks, vectors); err != nil {
		return nil, fmt.Errorf("extend index failed: %w", err)
	}
	if err := candidate.Save(sess.IndexDir()); err != nil {
		return nil, err
	}
	sess.SetIndex(candidate)

	s.logger.Info("documents ingested",
		zap.String("session_id", sess.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("index_size", candidate.Len()),
		zap.Int("failed_sources", len(failures)))

	return &IngestResult{
		ChunkCount: len(chunks),
		IndexSize:  candidate.Len(),
		Failures:   failures,
	}, nil
}

// embedAll embeds every chunk before anything touches the index, batched to
// respect provider limits. Any batch failure fails the call.
func (s *IngestService) embedAll(ctx context.Context, apiKey string, chunks []model.Chunk) ([][]float32, error) {
	embCfg := ai.EmbeddingConfig{
		BaseURL: s.cfg.LLMBaseURL,
		APIKey:  apiKey,
		Model:   s.cfg.EmbeddingModel,
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		batch, err := s.aiClient.EmbedBatch(batchCtx, embCfg, texts[start:end])
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
