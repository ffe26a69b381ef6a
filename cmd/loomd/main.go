package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"loom/internal/agents"
	"loom/internal/config"
	"loom/internal/documents"
	"loom/internal/emstore"
	"loom/internal/engine"
	"loom/internal/httpapi"
	"loom/internal/imggen"
	"loom/internal/llm"
	"loom/internal/llm/providers"
	"loom/internal/observability"
	"loom/internal/retriever"
)

func main() {
	// Load .env before the logger so LOG_PATH/LOG_LEVEL are respected.
	_ = godotenv.Load(".env")
	observability.InitLogger(os.Getenv("LOG_PATH"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	httpClient := &http.Client{Timeout: 180 * time.Second}
	gateway, err := providers.Build(cfg, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build model gateway")
	}

	ctx := context.Background()

	store, err := buildStore(ctx, cfg, gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build embedding store")
	}

	library := documents.NewLibrary()
	syncCorpora(ctx, cfg, store, library)

	ret := retriever.New(gateway, store, library, cfg.Engine.SnippetChars)

	images, err := imggen.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build image generator")
	}
	if images == nil {
		log.Warn().Str("provider", cfg.ImageProvider).Msg("image provider has no credentials, image nodes will degrade")
	}

	registry := agents.NewRegistry()
	agents.RegisterDefaults(registry)

	eng := engine.New(registry, gateway, ret, images, cfg.Engine.MaxParallelAgents)
	server := httpapi.NewServer(eng, library, time.Duration(cfg.Engine.RequestTimeoutSec)*time.Second)

	log.Info().Str("addr", cfg.Addr()).Str("provider", cfg.Provider).
		Strs("corpora", library.Corpora()).Msg("loomd listening")
	if err := http.ListenAndServe(cfg.Addr(), server); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// buildStore selects the embedding backend: DATABASE_URL → pgvector,
// QDRANT_URL → Qdrant, otherwise a JSON file per corpus under DATA_PATH.
func buildStore(ctx context.Context, cfg config.Config, gateway llm.Gateway) (emstore.Store, error) {
	switch {
	case cfg.Store.DatabaseURL != "":
		log.Info().Msg("using postgres embedding store")
		return emstore.NewPostgresStore(ctx, cfg.Store.DatabaseURL, gateway, cfg.Models.Dimensions, cfg.Engine.EmbedBatchSize)
	case cfg.Store.QdrantURL != "":
		log.Info().Msg("using qdrant embedding store")
		return emstore.NewQdrantStore(ctx, cfg.Store.QdrantURL, gateway, cfg.Models.Dimensions, cfg.Engine.EmbedBatchSize)
	default:
		dir := filepath.Join(cfg.DataPath, "embeddings")
		log.Info().Str("dir", dir).Msg("using file embedding store")
		return emstore.NewFileStore(gateway, dir, cfg.Engine.EmbedBatchSize)
	}
}

// syncCorpora loads every configured corpus into the library and indexes it.
// Sync failures are non-fatal: runs proceed with whatever is indexed.
func syncCorpora(ctx context.Context, cfg config.Config, store emstore.Store, library *documents.Library) {
	if cfg.KnowledgePath == "" && cfg.CorporaConfig == "" {
		log.Info().Msg("no knowledge path configured, retrieval disabled")
		return
	}

	var corpora map[string]string
	var err error
	if cfg.CorporaConfig != "" {
		corpora, err = documents.LoadCorporaConfig(cfg.CorporaConfig)
	} else {
		corpora, err = documents.DiscoverCorpora(cfg.KnowledgePath)
	}
	if err != nil {
		log.Error().Err(err).Msg("corpus discovery failed, retrieval disabled")
		return
	}

	names := make([]string, 0, len(corpora))
	for name := range corpora {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dir := corpora[name]
		docs, err := documents.LoadCorpus(dir, name)
		if err != nil {
			log.Error().Err(err).Str("corpus", name).Msg("corpus load failed, skipping")
			continue
		}
		library.Put(name, docs)
		stats, err := store.Sync(ctx, name, docs)
		if err != nil {
			log.Error().Err(err).Str("corpus", name).Msg("embedding sync failed, proceeding with partial index")
			continue
		}
		log.Info().Str("corpus", name).Int("documents", len(docs)).
			Int("embedded", stats.Embedded).Int("reused", stats.Reused).
			Int("deleted", stats.Deleted).Int("failed", stats.Failed).Msg("corpus synced")
	}
}
