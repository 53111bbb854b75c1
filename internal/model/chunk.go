package model

// Chunk is a bounded unit of source text tagged with provenance.
// Immutable once produced by the loader.
type Chunk struct {
	Source  string `json:"source"`
	Seq     int    `json:"seq"`
	Content string `json:"content"`
}
