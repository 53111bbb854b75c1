// Package vectorstore holds the per-session chunk index: a brute-force
// cosine-similarity store small enough for one user's documents, with
// round-tripping through the session workspace.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"askthedocs/internal/model"
)

// ErrIndexNotFound marks a restore from a directory that holds no usable
// index (missing or corrupt). Callers treat it as "no documents yet".
var ErrIndexNotFound = errors.New("no index found")

const indexFileName = "index.json"

// ScoredChunk is one retrieval hit.
type ScoredChunk struct {
	Chunk model.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Index pairs chunks with their embedding vectors. One index belongs to
// exactly one session; writers must not overlap (the owning session
// serializes build/extend calls), reads take the shared lock.
type Index struct {
	mu      sync.RWMutex
	dim     int
	chunks  []model.Chunk
	vectors [][]float32
}

func New() *Index {
	return &Index{}
}

// Add appends chunks with their vectors. The first batch fixes the vector
// dimension; later batches must match it.
func (ix *Index) Add(chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range vectors {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("empty vector for chunk %d", i)
		}
		if ix.dim == 0 {
			ix.dim = len(vectors[i])
		}
		if len(vectors[i]) != ix.dim {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), ix.dim)
		}
	}
	for i := range chunks {
		vec := make([]float32, ix.dim)
		copy(vec, vectors[i])
		ix.chunks = append(ix.chunks, chunks[i])
		ix.vectors = append(ix.vectors, vec)
	}
	return nil
}

// Search returns up to k chunks ranked by descending cosine similarity to
// query. Ties keep insertion order. k larger than the index returns
// everything.
func (ix *Index) Search(query []float32, k int) []ScoredChunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.chunks) == 0 {
		return nil
	}

	scored := make([]ScoredChunk, len(ix.chunks))
	for i := range ix.chunks {
		scored[i] = ScoredChunk{
			Chunk: ix.chunks[i],
			Score: cosineSimilarity(query, ix.vectors[i]),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Clone returns an independent copy. Extending a session's index goes
// through a clone so a failed build never leaks partial state into the
// index callers already hold.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := &Index{
		dim:     ix.dim,
		chunks:  append([]model.Chunk(nil), ix.chunks...),
		vectors: make([][]float32, len(ix.vectors)),
	}
	for i, vec := range ix.vectors {
		out.vectors[i] = append([]float32(nil), vec...)
	}
	return out
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

type persistedIndex struct {
	Dim     int           `json:"dim"`
	Chunks  []model.Chunk `json:"chunks"`
	Vectors [][]float32   `json:"vectors"`
}

// Save serializes the index into dir, creating it if needed. The write goes
// through a temp file and rename so a crash never leaves a half-written
// index behind.
func (ix *Index) Save(dir string) error {
	ix.mu.RLock()
	snapshot := persistedIndex{
		Dim:     ix.dim,
		Chunks:  append([]model.Chunk(nil), ix.chunks...),
		Vectors: append([][]float32(nil), ix.vectors...),
	}
	ix.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal index failed: %w", err)
	}
	tmp := filepath.Join(dir, indexFileName+".tmp")
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write index file failed: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, indexFileName)); err != nil {
		return fmt.Errorf("finalize index file failed: %w", err)
	}
	return nil
}

// Load restores an index from dir. A missing or unreadable index reports
// ErrIndexNotFound rather than failing the caller outright.
func Load(dir string) (*Index, error) {
	raw, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrIndexNotFound, err)
	}
	var stored persistedIndex
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: corrupt index file: %v", ErrIndexNotFound, err)
	}
	if len(stored.Chunks) != len(stored.Vectors) {
		return nil, fmt.Errorf("%w: corrupt index file: chunk/vector count mismatch", ErrIndexNotFound)
	}
	return &Index{
		dim:     stored.Dim,
		chunks:  stored.Chunks,
		vectors: stored.Vectors,
	}, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
