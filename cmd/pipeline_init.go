package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/config"
	"github.com/sells-group/orderparse/internal/cost"
	"github.com/sells-group/orderparse/internal/extract"
	"github.com/sells-group/orderparse/internal/pipeline"
	"github.com/sells-group/orderparse/internal/preprocess"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/provider/claude"
	"github.com/sells-group/orderparse/internal/provider/openai"
	"github.com/sells-group/orderparse/internal/resilience"
	"github.com/sells-group/orderparse/internal/scoring"
	"github.com/sells-group/orderparse/internal/store"
	anthropicpkg "github.com/sells-group/orderparse/pkg/anthropic"
	openaipkg "github.com/sells-group/orderparse/pkg/openai"
)

// parserEnv holds everything the parse/batch/serve commands share.
type parserEnv struct {
	Store   store.Store // nil when store.driver is "none"
	Manager *provider.Manager
	Scorer  *scoring.Scorer
	Parser  *pipeline.Parser
}

// Close releases resources held by the environment.
func (pe *parserEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initParser validates the config for mode, opens the store and builds the
// provider manager and parser. Callers should defer env.Close().
func initParser(ctx context.Context, mode string) (*parserEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	mgr, err := initManager(cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	scorer := scoring.New(cfg.Scoring)
	pre := preprocess.New(preprocess.Config{
		PdfToTextPath: cfg.Preprocess.PdfToTextPath,
		MaxPages:      cfg.Preprocess.MaxPages,
		MaxFileMB:     cfg.Preprocess.MaxFileMB,
	})

	// A nil store.Store must not become a non-nil RunRecorder.
	var recorder pipeline.RunRecorder
	if st != nil {
		recorder = st
	}

	zap.L().Info("parser ready",
		zap.Strings("providers", mgr.Providers()),
		zap.String("store", cfg.Store.Driver),
	)

	return &parserEnv{
		Store:   st,
		Manager: mgr,
		Scorer:  scorer,
		Parser:  pipeline.New(pre, mgr, scorer, recorder),
	}, nil
}

// initManager registers every provider with a key, OpenAI first.
func initManager(c *config.Config) (*provider.Manager, error) {
	truncator, err := extract.NewTruncator(c.Preprocess.MaxTextTokens)
	if err != nil {
		return nil, err
	}
	costs := cost.NewCalculator(c.Pricing)

	var regs []provider.Registration
	if c.OpenAI.Enabled() {
		opts := []openaipkg.Option{openaipkg.WithModel(c.OpenAI.Model)}
		if c.OpenAI.BaseURL != "" {
			opts = append(opts, openaipkg.WithBaseURL(c.OpenAI.BaseURL))
		}
		regs = append(regs, provider.Registration{
			Adapter: openai.New(openaipkg.NewClient(c.OpenAI.Key, opts...), openai.Options{
				Model:     c.OpenAI.Model,
				MaxTokens: c.OpenAI.MaxTokens,
				Truncator: truncator,
				Costs:     costs,
			}),
			Seed:              seedFor(c.OpenAI),
			RequestsPerSecond: c.OpenAI.RequestsPerSecond,
		})
	}
	if c.Anthropic.Enabled() {
		var opts []anthropicpkg.Option
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		regs = append(regs, provider.Registration{
			Adapter: claude.New(anthropicpkg.NewClient(c.Anthropic.Key, opts...), claude.Options{
				Model:     c.Anthropic.Model,
				MaxTokens: int64(c.Anthropic.MaxTokens),
				CacheTTL:  c.Anthropic.CacheTTL,
				Truncator: truncator,
				Costs:     costs,
			}),
			Seed:              seedFor(c.Anthropic),
			RequestsPerSecond: c.Anthropic.RequestsPerSecond,
		})
	}
	if len(regs) == 0 {
		return nil, eris.New("no providers configured (set ORDERPARSE_OPENAI_KEY or ORDERPARSE_ANTHROPIC_KEY)")
	}

	return provider.NewManager(routingConfig(c.Routing), regs...)
}

func routingConfig(r config.RoutingConfig) provider.Config {
	return provider.Config{
		Breaker:        resilience.FromCircuitConfig(r.FailureThreshold, r.RecoveryTimeoutSecs),
		MaxAttempts:    r.MaxAttempts,
		CallTimeout:    time.Duration(r.ParseTimeoutSecs) * time.Second,
		HealthTimeout:  time.Duration(r.HealthTimeoutSecs) * time.Second,
		MinSuccessRate: r.MinSuccessRate,
	}
}

func seedFor(p config.ProviderConfig) provider.Seed {
	return provider.Seed{
		CostPerRequest:  p.CostPerRequest,
		AvgResponseTime: time.Duration(p.InitialResponseTimeSecs * float64(time.Second)),
		AvgQuality:      p.InitialQuality,
	}
}

// initStore opens the configured run store. The "none" driver returns nil.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "orderparse.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}
