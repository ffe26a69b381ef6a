package documents

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "haccp.md"), []byte("# HACCP Basics\n\nHazard analysis."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("plain notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignore.bin"), []byte{0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadCorpus(dir, "food-safety")
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	byID := map[string]Document{}
	for _, d := range docs {
		byID[d.ID] = d
		if d.Corpus != "food-safety" {
			t.Errorf("corpus not set on %s", d.ID)
		}
		if d.Hash == "" {
			t.Errorf("hash not set on %s", d.ID)
		}
	}
	if byID["haccp.md"].Title != "HACCP Basics" {
		t.Errorf("markdown title should come from first H1, got %q", byID["haccp.md"].Title)
	}
	if byID["notes.txt"].Title != "notes" {
		t.Errorf("txt title should be file stem, got %q", byID["notes.txt"].Title)
	}
}

func TestLoadCorpusSkipsBinaryWithoutExtractor(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	docs, err := LoadCorpus(dir, "c")
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("pdf without a registered extractor should be skipped, got %d docs", len(docs))
	}
}

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("same"))
	b := HashBytes([]byte("same"))
	c := HashBytes([]byte("different"))
	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == c {
		t.Error("distinct content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected sha256 hex digest, got %d chars", len(a))
	}
}

func TestDecodeUploadRawText(t *testing.T) {
	text, note := DecodeUpload(UploadedFile{Name: "data.csv", Content: "a,b\n1,2"})
	if note != "" {
		t.Fatalf("unexpected note: %s", note)
	}
	if text != "a,b\n1,2" {
		t.Fatalf("csv should pass through, got %q", text)
	}
}

func TestDecodeUploadPDFWithoutExtractor(t *testing.T) {
	payload := PDFBase64Prefix + base64.StdEncoding.EncodeToString([]byte("binary"))
	text, note := DecodeUpload(UploadedFile{Name: "doc.pdf", Content: payload})
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
	if !strings.Contains(note, "no pdf extractor") {
		t.Fatalf("expected recoverable note, got %q", note)
	}
}

func TestDecodeUploadPDFWithExtractor(t *testing.T) {
	RegisterExtractor("pdf", func(data []byte) (string, error) {
		return "extracted:" + string(data), nil
	})
	t.Cleanup(func() {
		extractorsMu.Lock()
		delete(extractors, "pdf")
		extractorsMu.Unlock()
	})

	payload := PDFBase64Prefix + base64.StdEncoding.EncodeToString([]byte("binary"))
	text, note := DecodeUpload(UploadedFile{Name: "doc.pdf", Content: payload})
	if note != "" {
		t.Fatalf("unexpected note: %s", note)
	}
	if text != "extracted:binary" {
		t.Fatalf("got %q", text)
	}
}

func TestDecodeUploadBadBase64(t *testing.T) {
	text, note := DecodeUpload(UploadedFile{Name: "doc.pdf", Content: PDFBase64Prefix + "!!!not-base64"})
	if text != "" || note == "" {
		t.Fatalf("expected empty text and a note, got %q / %q", text, note)
	}
}
