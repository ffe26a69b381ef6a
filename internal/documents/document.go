package documents

import (
	"crypto/sha256"
	"encoding/hex"
)

// Document is one corpus entry. Text is the extracted plain text; Hash is the
// hex digest of the raw file bytes and gates the embedding cache.
type Document struct {
	Corpus string `json:"corpus"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Source string `json:"source"`
	Hash   string `json:"hash"`
}

// HashBytes returns the content hash used for embedding-cache validity.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
