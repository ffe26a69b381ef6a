package emstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/documents"
	"loom/internal/llm"
)

// PostgresStore keeps embeddings in a pgvector-backed table shared by all
// corpora. Selected by DATABASE_URL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	gateway   llm.Gateway
	batchSize int
}

func NewPostgresStore(ctx context.Context, dsn string, gateway llm.Gateway, dimensions, batchSize int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure pgvector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS loom_embeddings (
  id TEXT NOT NULL,
  corpus TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  hash TEXT NOT NULL,
  vec %s NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (corpus, id)
);
`, vecType)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure embeddings table: %w", err)
	}
	_, _ = pool.Exec(ctx, `
CREATE INDEX IF NOT EXISTS loom_embeddings_vec_idx
ON loom_embeddings USING ivfflat (vec vector_cosine_ops) WITH (lists = 100)
`)
	return &PostgresStore{pool: pool, gateway: gateway, batchSize: batchSize}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Sync(ctx context.Context, corpus string, docs []documents.Document) (SyncStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, hash FROM loom_embeddings WHERE corpus=$1`, corpus)
	if err != nil {
		return SyncStats{}, fmt.Errorf("load stored hashes: %w", err)
	}
	stored := map[string]string{}
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			rows.Close()
			return SyncStats{}, err
		}
		stored[id] = hash
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SyncStats{}, err
	}

	plan := planSync(stored, docs)
	stats := SyncStats{Reused: len(plan.reuse), Deleted: len(plan.delete)}

	vectors, failed := embedBatches(ctx, s.gateway, plan.embed, s.batchSize)
	stats.Failed = failed

	for _, id := range plan.delete {
		if _, err := s.pool.Exec(ctx, `DELETE FROM loom_embeddings WHERE corpus=$1 AND id=$2`, corpus, id); err != nil {
			return stats, fmt.Errorf("evict %s: %w", id, err)
		}
	}
	for i, d := range plan.embed {
		if vectors[i] == nil {
			// Evict any stale record rather than keep a mismatched hash.
			if _, err := s.pool.Exec(ctx, `DELETE FROM loom_embeddings WHERE corpus=$1 AND id=$2`, corpus, d.ID); err != nil {
				return stats, fmt.Errorf("evict stale %s: %w", d.ID, err)
			}
			continue
		}
		_, err := s.pool.Exec(ctx, `
INSERT INTO loom_embeddings(id, corpus, content, hash, vec, title, source)
VALUES($1, $2, $3, $4, $5::vector, $6, $7)
ON CONFLICT (corpus, id) DO UPDATE
SET content=EXCLUDED.content, hash=EXCLUDED.hash, vec=EXCLUDED.vec,
    title=EXCLUDED.title, source=EXCLUDED.source
`, d.ID, corpus, d.Text, d.Hash, toVectorLiteral(vectors[i]), d.Title, d.Source)
		if err != nil {
			return stats, fmt.Errorf("upsert %s: %w", d.ID, err)
		}
		stats.Embedded++
	}
	return stats, nil
}

func (s *PostgresStore) Search(ctx context.Context, corpus string, query []float32, k int) ([]Scored, error) {
	if k <= 0 || isZeroVector(query) {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, 1 - (vec <=> $1::vector) AS score
FROM loom_embeddings
WHERE corpus=$2
ORDER BY vec <=> $1::vector ASC, id ASC
LIMIT $3
`, toVectorLiteral(query), corpus, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Scored, 0, k)
	for rows.Next() {
		var r Scored
		if err := rows.Scan(&r.DocID, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, corpus string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM loom_embeddings WHERE corpus=$1`, corpus).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
