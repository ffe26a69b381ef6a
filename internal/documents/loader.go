package documents

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// supportedExtensions are the corpus file types walked on startup.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".pdf":  true,
	".docx": true,
}

// LoadCorpus walks root and returns one Document per supported file. Files
// whose format has no registered extractor are skipped with a warning; the
// corpus load itself only fails when the directory cannot be read.
func LoadCorpus(root, corpus string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExtensions[ext] {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("corpus file unreadable, skipping")
			return nil
		}
		text, err := Extract(ext, raw)
		if err != nil {
			if errors.Is(err, ErrNoExtractor) {
				log.Warn().Str("path", path).Str("format", ext).Msg("no extractor for corpus file, skipping")
			} else {
				log.Warn().Err(err).Str("path", path).Msg("corpus extraction failed, skipping")
			}
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, Document{
			Corpus: corpus,
			ID:     filepath.ToSlash(rel),
			Title:  titleFor(path, ext, text),
			Text:   text,
			Source: path,
			Hash:   HashBytes(raw),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// titleFor prefers the first H1 for markdown, the file stem otherwise.
func titleFor(path, ext, text string) string {
	if ext == ".md" {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "# ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "# "))
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
