package emstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"loom/internal/documents"
	"loom/internal/llm"
)

// corpusFile is the on-disk schema: one file per corpus holding the full
// embedding table plus the hash map that gates cache validity.
type corpusFile struct {
	DocumentsHash map[string]string `json:"documents_hash"`
	Embeddings    []embeddingRow    `json:"embeddings"`
}

type embeddingRow struct {
	DocID     string    `json:"doc_id"`
	Embedding []float32 `json:"embedding"`
}

type corpusTable struct {
	hashes  map[string]string
	vectors map[string][]float32
}

// FileStore keeps embeddings in memory and persists each corpus to a JSON
// file with atomic replace on write.
type FileStore struct {
	gateway   llm.Gateway
	dir       string
	batchSize int

	mu      sync.RWMutex
	corpora map[string]*corpusTable
}

func NewFileStore(gateway llm.Gateway, dir string, batchSize int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create embedding dir: %w", err)
	}
	return &FileStore{
		gateway:   gateway,
		dir:       dir,
		batchSize: batchSize,
		corpora:   make(map[string]*corpusTable),
	}, nil
}

func (s *FileStore) path(corpus string) string {
	return filepath.Join(s.dir, corpus+".json")
}

// load reads a corpus table from disk into memory; a missing file is an empty
// table.
func (s *FileStore) load(corpus string) (*corpusTable, error) {
	s.mu.RLock()
	t, ok := s.corpora[corpus]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}

	t = &corpusTable{hashes: map[string]string{}, vectors: map[string][]float32{}}
	raw, err := os.ReadFile(s.path(corpus))
	if err == nil {
		var cf corpusFile
		if jerr := json.Unmarshal(raw, &cf); jerr != nil {
			return nil, fmt.Errorf("corrupt embedding file for corpus %s: %w", corpus, jerr)
		}
		if cf.DocumentsHash != nil {
			t.hashes = cf.DocumentsHash
		}
		for _, row := range cf.Embeddings {
			t.vectors[row.DocID] = row.Embedding
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read embedding file for corpus %s: %w", corpus, err)
	}

	s.mu.Lock()
	s.corpora[corpus] = t
	s.mu.Unlock()
	return t, nil
}

func (s *FileStore) Sync(ctx context.Context, corpus string, docs []documents.Document) (SyncStats, error) {
	t, err := s.load(corpus)
	if err != nil {
		return SyncStats{}, err
	}

	s.mu.RLock()
	stored := make(map[string]string, len(t.hashes))
	for k, v := range t.hashes {
		stored[k] = v
	}
	s.mu.RUnlock()

	plan := planSync(stored, docs)
	stats := SyncStats{Reused: len(plan.reuse), Deleted: len(plan.delete)}

	vectors, failed := embedBatches(ctx, s.gateway, plan.embed, s.batchSize)
	stats.Failed = failed

	s.mu.Lock()
	for _, id := range plan.delete {
		delete(t.hashes, id)
		delete(t.vectors, id)
	}
	for i, d := range plan.embed {
		if vectors[i] == nil {
			// A failed batch leaves any previous stale record evicted rather
			// than serving a vector that no longer matches the document.
			delete(t.hashes, d.ID)
			delete(t.vectors, d.ID)
			continue
		}
		t.hashes[d.ID] = d.Hash
		t.vectors[d.ID] = vectors[i]
		stats.Embedded++
	}
	snapshot := tableSnapshot(t)
	s.mu.Unlock()

	if err := s.persist(corpus, snapshot); err != nil {
		return stats, err
	}
	return stats, nil
}

func tableSnapshot(t *corpusTable) corpusFile {
	cf := corpusFile{DocumentsHash: make(map[string]string, len(t.hashes))}
	for id, h := range t.hashes {
		cf.DocumentsHash[id] = h
	}
	cf.Embeddings = make([]embeddingRow, 0, len(t.vectors))
	for id, vec := range t.vectors {
		cf.Embeddings = append(cf.Embeddings, embeddingRow{DocID: id, Embedding: vec})
	}
	return cf
}

// persist writes the corpus file via a temp file and rename so readers never
// observe a partial table.
func (s *FileStore) persist(corpus string, cf corpusFile) error {
	data, err := json.Marshal(cf)
	if err != nil {
		return fmt.Errorf("marshal embedding table: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, corpus+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp embedding file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write embedding file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close embedding file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(corpus)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace embedding file: %w", err)
	}
	return nil
}

func (s *FileStore) Search(ctx context.Context, corpus string, query []float32, k int) ([]Scored, error) {
	if k <= 0 || isZeroVector(query) {
		return nil, nil
	}
	t, err := s.load(corpus)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	scored := make([]Scored, 0, len(t.vectors))
	for id, vec := range t.vectors {
		scored = append(scored, Scored{DocID: id, Score: Cosine(query, vec)})
	}
	s.mu.RUnlock()
	return topK(scored, k), nil
}

func (s *FileStore) Count(ctx context.Context, corpus string) (int, error) {
	t, err := s.load(corpus)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(t.vectors), nil
}
