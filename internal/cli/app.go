package cli

import (
	"context"
	"fmt"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/brandmesh/agent"
	"github.com/hupe1980/brandmesh/auth"
	"github.com/hupe1980/brandmesh/config"
	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/docstore/postgres"
	"github.com/hupe1980/brandmesh/docstore/sqlite"
	"github.com/hupe1980/brandmesh/handoff"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/memory"
	"github.com/hupe1980/brandmesh/memory/chromem"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/model/anthropic"
	"github.com/hupe1980/brandmesh/model/openai"
	"github.com/hupe1980/brandmesh/pipeline"
	"github.com/hupe1980/brandmesh/planner"
	"github.com/hupe1980/brandmesh/runner"
	"github.com/hupe1980/brandmesh/settings"
	"github.com/hupe1980/brandmesh/telemetry"
	"github.com/hupe1980/brandmesh/tool"
)

// App holds the long-lived components a command needs.
type App struct {
	Config      config.Config
	Logger      *logging.BrandMeshLogger
	Clock       core.Clock
	Store       docstore.Store
	Repo        *memory.Repository
	Coordinator *handoff.Coordinator
	Mailbox     *memory.Mailbox
	Shared      *memory.SharedContext
	Facts       memory.FactStore
	Settings    *settings.Cache
	JWT         *auth.JWTManager

	shutdown telemetry.Shutdown
}

// NewApp wires the runtime from cfg.
func NewApp(ctx context.Context, cfg config.Config, version string) (*App, error) {
	logger := logging.NewSlogLogger(logLevel(cfg.LogLevel), cfg.LogFormat, false).WithComponent("cli")
	clock := core.SystemClock{}

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, clock, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	cache, err := settings.New(func(o *settings.Options) {
		o.TTL = cfg.SettingsTTL
		o.Clock = clock
		o.Logger = logger
	})
	if err != nil {
		_ = store.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	jwt, err := auth.NewJWTManager(func(o *auth.JWTOptions) {
		o.PrivateKeyPath = cfg.JWTPrivateKeyPath
		o.PublicKeyPath = cfg.JWTPublicKeyPath
		o.Expiration = cfg.JWTExpiration
		o.Clock = clock
		o.Logger = logger
	})
	if err != nil {
		cache.Close()
		_ = store.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Clock:  clock,
		Store:  store,
		Repo: memory.NewRepository(store, func(o *memory.RepositoryOptions) {
			o.Clock = clock
			o.Logger = logger
		}),
		Coordinator: handoff.New(store, func(o *handoff.Options) {
			o.Clock = clock
			o.Logger = logger
		}),
		Mailbox: memory.NewMailbox(store, clock),
		Shared:  memory.NewSharedContext(store, clock),
		Facts: chromem.New(func(o *chromem.Options) {
			o.Clock = clock
			o.Logger = logger
		}),
		Settings: cache,
		JWT:      jwt,
		shutdown: shutdown,
	}, nil
}

// Close releases the store and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	a.Settings.Close()

	if err := a.Store.Close(); err != nil {
		return err
	}

	return a.shutdown(ctx)
}

func openStore(ctx context.Context, cfg config.Config, clock core.Clock, logger logging.Logger) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		return sqlite.New(ctx, cfg.SQLitePath, func(o *sqlite.Options) { o.Clock = clock })
	case config.StorePostgres:
		return postgres.New(ctx, cfg.DatabaseURL, func(o *postgres.Options) {
			o.Clock = clock
			o.Logger = logger
		})
	case config.StoreMemory:
		logger.Warn("cli.store.ephemeral", "backend", cfg.StoreBackend)
		return docstore.NewInMemoryStore(clock), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Routing returns the tenant's model routing, falling back to the
// configured defaults.
func (a *App) Routing(ctx context.Context, tenantID string) (settings.ModelRouting, error) {
	fallback := settings.ModelRouting{
		ToolModel:      a.Config.ToolModel,
		ReasoningModel: a.Config.ReasoningModel,
		Effort:         model.Effort(a.Config.Effort),
	}

	return a.Settings.Get(ctx, tenantID, settings.StoreLoader(a.Store, fallback))
}

// Model builds a router over the configured providers. It returns nil when
// no provider key is set; agents then answer user requests with an apology
// and the finder falls back to a single direct search.
func (a *App) Model(r settings.ModelRouting) model.Model {
	tools := a.backend(r.ToolModel)
	reasoning := a.backend(r.ReasoningModel)

	if tools == nil && reasoning == nil {
		return nil
	}

	return model.NewRouter(tools, reasoning, func(o *model.RouterOptions) {
		o.DefaultEffort = r.Effort
	})
}

// backend picks the provider from the model name.
func (a *App) backend(name string) model.Model {
	switch {
	case name == "":
		return nil
	case strings.HasPrefix(name, "claude"):
		if a.Config.AnthropicAPIKey == "" {
			return nil
		}
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = a.Config.AnthropicAPIKey
			o.Model = sdkanthropic.Model(name)
		})
	default:
		if a.Config.OpenAIAPIKey == "" {
			return nil
		}
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = a.Config.OpenAIAPIKey
			o.Model = name
		})
	}
}

// Runner builds the roster and runner for one tenant.
func (a *App) Runner(ctx context.Context, tenantID string) (*runner.Runner, error) {
	routing, err := a.Routing(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	roster, err := a.roster(a.Model(routing))
	if err != nil {
		return nil, err
	}

	return runner.New(a.Repo, roster, func(o *runner.Options) {
		o.MaxConcurrentInvocations = a.Config.MaxConcurrentInvocations
		o.ActTimeout = a.Config.ActTimeout
		o.Coordinator = a.Coordinator
		o.Mailbox = a.Mailbox
		o.Shared = a.Shared
		o.Facts = a.Facts
		o.Integrations = a.integrations()
		o.Clock = a.Clock
		o.Logger = a.Logger
	}), nil
}

func (a *App) roster(m model.Model) (*agent.Roster, error) {
	configure := func(o *agent.Options) {
		ac := a.Config.Agent(o.Name)

		o.Model = m
		if ac.Model != "" {
			if override := a.backend(ac.Model); override != nil {
				o.Model = override
			}
		}
		if ac.MaxIterations > 0 {
			o.MaxIterations = ac.MaxIterations
		}
		if ac.Effort != "" {
			o.Effort = model.Effort(ac.Effort)
		}
		if ac.Instructions != "" {
			o.Instruction = agent.NewInstructionFromText(ac.Instructions)
		}
		o.Clock = a.Clock
		o.Logger = a.Logger
	}

	candidates := []agent.Agent{
		agent.NewIntelAgent(func(o *agent.IntelOptions) { configure(&o.Options) }),
		agent.NewMarketingAgent(func(o *agent.MarketingOptions) { configure(&o.Options) }),
		agent.NewComplianceAgent(configure),
		agent.NewOperationsAgent(func(o *agent.OperationsOptions) { configure(&o.Options) }),
	}

	roster := agent.NewRoster()
	for _, ag := range candidates {
		if a.Config.Agent(ag.Name()).Disabled {
			continue
		}
		if err := roster.Register(ag); err != nil {
			return nil, err
		}
	}

	return roster, nil
}

func (a *App) integrations() tool.Shims {
	shims := tool.Shims{
		agent.ScanCompetitor: scanCompetitor(pipeline.NewHTTPBackend()),
	}

	if a.Config.SearchURL != "" {
		shims[pipeline.SearchWeb] = pipeline.NewHTTPSearch(a.Config.SearchURL, nil)
	}

	return shims
}

// Pipeline builds a pipeline for one tenant. Alerts are delivered through
// r. Static backends are tried before the HTTP backend.
func (a *App) Pipeline(ctx context.Context, tenantID string, r *runner.Runner, catalog pipeline.Catalog, static ...pipeline.Backend) (*pipeline.Pipeline, error) {
	routing, err := a.Routing(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if catalog == nil {
		catalog = pipeline.NewStoreCatalog(a.Store)
	}

	var search tool.Handler
	if a.Config.SearchURL != "" {
		search = pipeline.NewHTTPSearch(a.Config.SearchURL, nil)
	}

	finder := pipeline.NewFinder(search, planner.New(func(o *planner.Options) { o.Logger = a.Logger }), func(o *pipeline.FinderOptions) {
		o.Model = a.Model(routing)
	})

	backends := append(append([]pipeline.Backend{}, static...), pipeline.NewHTTPBackend())
	scraper := pipeline.NewScraper(backends, func(o *pipeline.ScraperOptions) {
		o.Concurrency = a.Config.ScraperConcurrency
		o.Clock = a.Clock
	})

	analyzer := pipeline.NewAnalyzer(catalog, func(o *pipeline.AnalyzerOptions) {
		o.TieBand = a.Config.PriceTieBand
		o.AlertAgent = agent.NameMarketing
		o.Alerter = r
		o.Clock = a.Clock
	})

	return pipeline.New(finder, scraper, analyzer, func(o *pipeline.Options) {
		o.Store = a.Store
		o.Clock = a.Clock
		o.Logger = a.Logger
		o.DefaultMaxURLs = a.Config.MaxURLs
	}), nil
}

// Principal authenticates token, or returns a local operator principal for
// brandID when token is empty.
func (a *App) Principal(ctx context.Context, token, brandID string) (context.Context, error) {
	if token != "" {
		return a.JWT.Authenticate(ctx, token)
	}

	return auth.WithPrincipal(ctx, auth.Principal{Subject: "cli", BrandID: brandID, Role: auth.RoleOperator}), nil
}

func scanCompetitor(b *pipeline.HTTPBackend) tool.Handler {
	return func(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
		url := tool.StringArg(args, "url")
		if url == "" {
			return tool.Result{}, fmt.Errorf("competitor %s has no menu url", tool.StringArg(args, "competitor_id"))
		}

		snap, err := b.Scrape(tc.Context(), url)
		if err != nil {
			return tool.Result{}, err
		}

		items := make([]core.MenuItem, len(snap.Products))
		for i, p := range snap.Products {
			items[i] = core.MenuItem{Name: p.Name, Category: p.Category, Price: p.Price}
		}

		return tool.Result{Output: items}, nil
	}
}

func logLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LogLevelDebug
	case "warn", "warning":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
