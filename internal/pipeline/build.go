package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmskss/portfolio-health-report/internal/analysis"
	"github.com/tmskss/portfolio-health-report/internal/config"
	"github.com/tmskss/portfolio-health-report/internal/elasticsearch"
	"github.com/tmskss/portfolio-health-report/internal/mirror"
	"github.com/tmskss/portfolio-health-report/internal/report"
)

// Build wires the production collaborators described by cfg. The returned
// Elasticsearch client is nil unless that backend is selected.
func Build(ctx context.Context, cfg config.Common, log *slog.Logger) (*Pipeline, *elasticsearch.Client, error) {
	llm, err := analysis.New(analysis.Options{
		APIKey:         cfg.OpenAIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.OpenAIModel,
		EmbeddingModel: cfg.EmbeddingModel,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init openai: %w", err)
	}

	var (
		store    mirror.Store
		esClient *elasticsearch.Client
	)
	switch cfg.MirrorBackend {
	case config.MirrorElasticsearch:
		dims := 0
		if cfg.EmbeddingsEnabled {
			dims = cfg.EmbeddingDims
		}
		esClient, err = elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, dims, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init elasticsearch: %w", err)
		}
		if err := esClient.EnsureIndex(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure elasticsearch index: %w", err)
		}
		store = esClient
	default:
		store = mirror.NewMemory()
	}

	var embedder Embedder
	if cfg.EmbeddingsEnabled {
		embedder = llm
	}

	p := New(
		Options{EmailsDir: cfg.EmailsDir, ColleaguesFile: cfg.ColleaguesFile},
		store,
		embedder,
		report.NewAssembler(llm, llm, log),
		log,
	)
	return p, esClient, nil
}
