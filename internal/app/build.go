package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/zhouzirui/z-clinic/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/z-clinic/backend/internal/analysis/tokens"
	"github.com/zhouzirui/z-clinic/backend/internal/config"
	"github.com/zhouzirui/z-clinic/backend/internal/handler"
	"github.com/zhouzirui/z-clinic/backend/internal/model/persona"
	"github.com/zhouzirui/z-clinic/backend/internal/observability"
	"github.com/zhouzirui/z-clinic/backend/internal/service/ai"
	"github.com/zhouzirui/z-clinic/backend/internal/service/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/store/transcript"
)

// BuildResult holds every long-lived component of a running backend.
type BuildResult struct {
	Config      config.Config
	Router      http.Handler
	Personas    persona.Store
	Sessions    *chat.Service
	Generator   ai.Generator
	Transcripts transcript.Store
	Metrics     *observability.Metrics

	// Cleanup releases external resources (database handles) on shutdown.
	Cleanup func() error
}

// Build wires config into services. A missing generation provider is not
// fatal: sessions still run and every turn gets the fallback reply.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	var metrics *observability.Metrics
	var observer ai.Observer
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
		observer = metrics
	}

	store, err := transcript.NewStore(ctx, cfg.Store.TranscriptDSN)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	generator, err := ai.NewGenerator(ctx, cfg.AI, observer)
	switch {
	case errors.Is(err, ai.ErrNoProvider):
		log.Println("[ai] 未配置生成服务凭证，所有回复将使用兜底文案")
		generator = ai.Unavailable(observer)
	case err != nil:
		log.Printf("[ai] failed to initialize %s generator: %v", cfg.AI.ResolvedProvider(), err)
		generator = ai.Unavailable(observer)
	default:
		log.Printf("[ai] using %s generator", generator.Name())
	}

	personas := persona.NewMemoryStore(persona.Seed())
	resolver := ai.NewPersonaResolver(personas, cfg.Session.BackgroundFile)

	estimator := tokens.NewEstimator(cfg.Session.TokenEncoding)
	sessions := chat.NewService(chat.PolicyFromConfig(cfg.Session), chat.Dependencies{
		Resolver:         resolver,
		Generator:        generator,
		Scorer:           sentiment.Lexicon,
		Tokens:           estimator,
		Transcripts:      store,
		Metrics:          metrics,
		DefaultPersonaID: cfg.Session.PersonaID,
	})

	return &BuildResult{
		Config:      cfg,
		Router:      handler.NewRouter(personas, sessions, metrics),
		Personas:    personas,
		Sessions:    sessions,
		Generator:   generator,
		Transcripts: store,
		Metrics:     metrics,
		Cleanup:     store.Close,
	}, nil
}
