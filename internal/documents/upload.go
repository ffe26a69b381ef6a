package documents

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Base64 type-tag prefixes used by the upload wire format.
const (
	PDFBase64Prefix  = "__PDF_BASE64__"
	DocxBase64Prefix = "__DOCX_BASE64__"
)

// UploadedFile mirrors the wire shape of one uploaded document.
type UploadedFile struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// DecodeUpload turns an uploaded file into plain text. Binary payloads carry a
// type-tag prefix followed by base64; everything else is treated as raw text
// and dispatched on the file extension. A missing or failing extractor yields
// empty text plus a note for the step metadata (the run proceeds).
func DecodeUpload(f UploadedFile) (text string, note string) {
	content := f.Content
	if content == "" {
		return "", fmt.Sprintf("%s: empty upload", f.Name)
	}

	var format string
	var raw []byte
	switch {
	case strings.HasPrefix(content, PDFBase64Prefix):
		format = "pdf"
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(content, PDFBase64Prefix))
		if err != nil {
			return "", fmt.Sprintf("%s: invalid base64 payload: %v", f.Name, err)
		}
		raw = b
	case strings.HasPrefix(content, DocxBase64Prefix):
		format = "docx"
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(content, DocxBase64Prefix))
		if err != nil {
			return "", fmt.Sprintf("%s: invalid base64 payload: %v", f.Name, err)
		}
		raw = b
	default:
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
		if format == "" || !HasExtractor(format) {
			// Unrecognized text formats pass through untouched.
			return content, ""
		}
		raw = []byte(content)
	}

	out, err := Extract(format, raw)
	if err != nil {
		if errors.Is(err, ErrNoExtractor) {
			return "", fmt.Sprintf("%s: no %s extractor available", f.Name, format)
		}
		return "", fmt.Sprintf("%s: extraction failed: %v", f.Name, err)
	}
	return out, ""
}
