package documents

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// ErrNoExtractor means no handler is registered for a binary format. Callers
// treat it as recoverable: the document contributes no text but the run
// proceeds.
var ErrNoExtractor = errors.New("documents: no extractor registered for format")

// Extractor converts raw file bytes into plain text.
type Extractor func(data []byte) (string, error)

var (
	extractorsMu sync.RWMutex
	extractors   = map[string]Extractor{
		"txt":  passthrough,
		"text": passthrough,
		"csv":  passthrough,
		"md":   passthrough,
		"html": extractHTML,
	}
)

// RegisterExtractor installs (or replaces) the handler for a format key such
// as "pdf" or "docx". Binary-format extraction is a collaborator concern; the
// engine only ships text-adjacent handlers.
func RegisterExtractor(format string, fn Extractor) {
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors[normalizeFormat(format)] = fn
}

// Extract dispatches raw bytes to the handler registered for format.
func Extract(format string, data []byte) (string, error) {
	extractorsMu.RLock()
	fn, ok := extractors[normalizeFormat(format)]
	extractorsMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoExtractor, format)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	return text, nil
}

// HasExtractor reports whether a handler exists for format.
func HasExtractor(format string) bool {
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()
	_, ok := extractors[normalizeFormat(format)]
	return ok
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

func passthrough(data []byte) (string, error) {
	return string(data), nil
}

func extractHTML(data []byte) (string, error) {
	md, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", err
	}
	return md, nil
}
