package loader

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"askthedocs/internal/model"
	"askthedocs/internal/pkg/pdfextract"
)

// Kind identifies one of the supported source types. The set is closed:
// dispatch is a switch, not runtime type inspection.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
	KindWeb  Kind = "web"
)

// Source names one document to load: a file path for pdf/text, a URL for web.
type Source struct {
	Kind    Kind   `json:"kind"`
	Locator string `json:"locator"`
}

// SourceError records a per-source load failure. Loading continues past it.
type SourceError struct {
	Source Source `json:"source"`
	Reason string `json:"reason"`
}

func (e SourceError) Error() string {
	return fmt.Sprintf("load %s source %q failed: %s", e.Source.Kind, e.Source.Locator, e.Reason)
}

type Loader struct {
	chunkSize    int
	chunkOverlap int
	httpClient   *http.Client
}

func New(chunkSize, chunkOverlap int) *Loader {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 8
	}
	return &Loader{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Load extracts and chunks every source. A failing source is recorded and
// skipped; the remaining sources still load. An empty source list yields an
// empty chunk sequence and no failures.
func (l *Loader) Load(ctx context.Context, sources []Source) ([]model.Chunk, []SourceError) {
	var chunks []model.Chunk
	var failures []SourceError

	for _, src := range sources {
		text, name, err := l.extract(ctx, src)
		if err != nil {
			failures = append(failures, SourceError{Source: src, Reason: err.Error()})
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			failures = append(failures, SourceError{Source: src, Reason: "no extractable text"})
			continue
		}
		for i, piece := range chunkText(text, l.chunkSize, l.chunkOverlap) {
			chunks = append(chunks, model.Chunk{
				Source:  name,
				Seq:     i,
				Content: piece,
			})
		}
	}
	return chunks, failures
}

func (l *Loader) extract(ctx context.Context, src Source) (text, name string, err error) {
	switch src.Kind {
	case KindPDF:
		f, err := os.Open(src.Locator)
		if err != nil {
			return "", "", err
		}
		defer f.Close()
		text, err := pdfextract.ExtractText(f)
		if err != nil {
			return "", "", err
		}
		return text, filepath.Base(src.Locator), nil
	case KindText:
		b, err := os.ReadFile(src.Locator)
		if err != nil {
			return "", "", err
		}
		return string(b), filepath.Base(src.Locator), nil
	case KindWeb:
		text, err := l.fetchWebText(ctx, src.Locator)
		if err != nil {
			return "", "", err
		}
		return text, src.Locator, nil
	default:
		return "", "", fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		i += size - overlap
		if i >= len(runes) {
			break
		}
	}
	return chunks
}
