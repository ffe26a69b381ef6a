package emstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"loom/internal/documents"
	"loom/internal/llm"
)

const (
	qdrantCollection = "loom_documents"

	payloadDocID  = "doc_id"
	payloadCorpus = "corpus"
	payloadHash   = "hash"
)

// QdrantStore keeps embeddings in a single Qdrant collection with the corpus
// carried in the payload. Selected by QDRANT_URL. The Go client speaks
// Qdrant's gRPC API (port 6334 by default); an API key may be passed as a
// query parameter: "http://host:6334?api_key=...".
type QdrantStore struct {
	client    *qdrant.Client
	gateway   llm.Gateway
	batchSize int
}

func NewQdrantStore(ctx context.Context, dsn string, gateway llm.Gateway, dimensions, batchSize int) (*QdrantStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("qdrant requires EMBEDDING_DIMENSIONS > 0")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse QDRANT_URL: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in QDRANT_URL: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, gateway: gateway, batchSize: batchSize}
	if err := s.ensureCollection(ctx, dimensions); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return s, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimensions int) error {
	exists, err := s.client.CollectionExists(ctx, qdrantCollection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: qdrantCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// pointID derives a stable UUID from the corpus-qualified document id; Qdrant
// only accepts UUIDs and integers as point ids.
func pointID(corpus, docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(corpus+"/"+docID)).String()
}

func corpusFilter(corpus string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadCorpus, corpus)}}
}

// storedHashes scrolls the collection for the corpus and returns doc_id→hash.
func (s *QdrantStore) storedHashes(ctx context.Context, corpus string) (map[string]string, error) {
	stored := map[string]string{}
	var offset *qdrant.PointId
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: qdrantCollection,
			Filter:         corpusFilter(corpus),
			Limit:          qdrant.PtrOf(uint32(256)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return stored, nil
		}
		for _, p := range points {
			if p.Payload == nil {
				continue
			}
			id := p.Payload[payloadDocID].GetStringValue()
			if id == "" {
				continue
			}
			stored[id] = p.Payload[payloadHash].GetStringValue()
		}
		if len(points) < 256 {
			return stored, nil
		}
		offset = points[len(points)-1].Id
	}
}

func (s *QdrantStore) Sync(ctx context.Context, corpus string, docs []documents.Document) (SyncStats, error) {
	stored, err := s.storedHashes(ctx, corpus)
	if err != nil {
		return SyncStats{}, fmt.Errorf("load stored hashes: %w", err)
	}

	plan := planSync(stored, docs)
	stats := SyncStats{Reused: len(plan.reuse), Deleted: len(plan.delete)}

	vectors, failed := embedBatches(ctx, s.gateway, plan.embed, s.batchSize)
	stats.Failed = failed

	var evict []*qdrant.PointId
	for _, id := range plan.delete {
		evict = append(evict, qdrant.NewIDUUID(pointID(corpus, id)))
	}

	var points []*qdrant.PointStruct
	for i, d := range plan.embed {
		if vectors[i] == nil {
			evict = append(evict, qdrant.NewIDUUID(pointID(corpus, d.ID)))
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(corpus, d.ID)),
			Vectors: qdrant.NewVectorsDense(vectors[i]),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocID:  d.ID,
				payloadCorpus: corpus,
				payloadHash:   d.Hash,
			}),
		})
		stats.Embedded++
	}

	if len(evict) > 0 {
		if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: qdrantCollection,
			Points:         qdrant.NewPointsSelector(evict...),
		}); err != nil {
			return stats, fmt.Errorf("evict points: %w", err)
		}
	}
	if len(points) > 0 {
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: qdrantCollection,
			Points:         points,
		}); err != nil {
			return stats, fmt.Errorf("upsert points: %w", err)
		}
	}
	return stats, nil
}

func (s *QdrantStore) Search(ctx context.Context, corpus string, query []float32, k int) ([]Scored, error) {
	if k <= 0 || isZeroVector(query) {
		return nil, nil
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantCollection,
		Query:          qdrant.NewQueryDense(query),
		Filter:         corpusFilter(corpus),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		id := ""
		if h.Payload != nil {
			id = h.Payload[payloadDocID].GetStringValue()
		}
		if id == "" {
			id = h.Id.GetUuid()
		}
		out = append(out, Scored{DocID: id, Score: float64(h.Score)})
	}
	// Qdrant orders by score but leaves equal scores unordered; re-sort for
	// the deterministic tie-break the contract promises.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

func (s *QdrantStore) Count(ctx context.Context, corpus string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: qdrantCollection,
		Filter:         corpusFilter(corpus),
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
