package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/codehost"
	"issue-scout/internal/codehost/github"
	"issue-scout/internal/issues"
	"issue-scout/internal/llm"
	anthropicllm "issue-scout/internal/llm/anthropic"
	openaillm "issue-scout/internal/llm/openai"
	"issue-scout/internal/repos"
	"issue-scout/internal/scans"
	"issue-scout/internal/services/health"
	"issue-scout/internal/shared/config"
	"issue-scout/internal/shared/server"
	"issue-scout/internal/shared/storage/db"
	"issue-scout/internal/signals"
	"issue-scout/internal/structure"
	"issue-scout/internal/usage"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	ReposRepo      repos.Repo
	JobsRepo       scans.Repo
	SignalsRepo    signals.Repo
	CandidatesRepo issues.Repo

	RepoService  *repos.Service
	IssueService *issues.Service
	UsageService *usage.Service
	Pipeline     *issues.Pipeline
	Coordinator  *scans.Coordinator
}

// Options tweaks Build for callers other than the API server.
type Options struct {
	DBOptions db.Options
	// Hosts replaces the GitHub-backed code host factory when set.
	Hosts codehost.Factory
	// Provider replaces the configured LLM provider when set.
	Provider llm.Provider
}

// Build prepares shared dependencies and the HTTP router.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if opts.DBOptions == (db.Options{}) {
		opts.DBOptions = db.DefaultServerOptions()
	}

	sqlDB, err := buildDB(ctx, cfg, opts.DBOptions)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB}
	if err := buildServices(app, opts); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config: cfg,
		Health: health.NewService(sqlDB),
		Handlers: []server.RouteRegistrar{
			repos.NewHandler(app.RepoService),
			scans.NewHandler(app.Coordinator),
			signals.NewHandler(app.SignalsRepo),
			issues.NewHandler(app.IssueService),
			usage.NewHandler(app.UsageService),
		},
	})
	return app, nil
}

// Close stops in-flight scans and releases the database.
func (a *App) Close(ctx context.Context) error {
	err := a.Coordinator.Shutdown(ctx)
	if a.DB != nil {
		if cerr := a.DB.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(opts))
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App, opts Options) error {
	cfg := app.Config
	pricing := usage.Pricing{InputPerMTok: cfg.PriceInputPerMTok, OutputPerMTok: cfg.PriceOutputPerMTok}

	var deleteHooks []repos.DeleteHook
	if app.DB != nil {
		app.ReposRepo = &repos.PGRepo{DB: app.DB}
		app.JobsRepo = &scans.PGRepo{DB: app.DB}
		app.SignalsRepo = &signals.PGRepo{DB: app.DB}
		app.CandidatesRepo = &issues.PGRepo{DB: app.DB}
		app.UsageService = usage.NewPostgresService(usage.NewPGStore(app.DB), pricing)
	} else {
		jobs := scans.NewMemoryRepo()
		sigs := signals.NewMemoryRepo()
		candidates := issues.NewMemoryRepo()
		app.ReposRepo = repos.NewMemoryRepo()
		app.JobsRepo = jobs
		app.SignalsRepo = sigs
		app.CandidatesRepo = candidates
		app.UsageService = usage.NewService(pricing)
		deleteHooks = append(deleteHooks, jobs.DeleteByRepository, sigs.DeleteByRepository, candidates.DeleteByRepository)
	}

	heuristics, err := structure.LoadHeuristics(cfg.HeuristicsFile)
	if err != nil {
		return err
	}
	analyzer := structure.NewAnalyzer(heuristics)

	hosts := opts.Hosts
	if hosts == nil {
		hosts = github.NewFactory(codehost.StaticCredentials{Token: cfg.GitHubToken}, github.Options{
			BaseURL:           cfg.GitHubAPIURL,
			RequestsPerSecond: cfg.GitHubRPS,
			Burst:             int(cfg.GitHubRPS) + 1,
		})
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = buildProvider(cfg)
		if err != nil {
			return err
		}
	}

	app.Pipeline = &issues.Pipeline{
		Signals:          app.SignalsRepo,
		Repos:            app.ReposRepo,
		Candidates:       app.CandidatesRepo,
		Provider:         provider,
		Usage:            app.UsageService,
		MaxIssuesPerScan: cfg.ScanMaxIssues,
	}
	app.Coordinator = scans.NewCoordinator(scans.Deps{
		Jobs:      app.JobsRepo,
		Repos:     app.ReposRepo,
		Signals:   app.SignalsRepo,
		Hosts:     hosts,
		Analyzer:  analyzer,
		Extractor: signals.NewExtractor(),
		Pipeline:  app.Pipeline,
		BatchSize: cfg.ScanBatchSize,
	})

	app.RepoService = repos.NewService(app.ReposRepo, hosts, analyzer)
	app.RepoService.OnDelete(app.Coordinator.RepositoryDeleted)
	for _, h := range deleteHooks {
		app.RepoService.OnDelete(h)
	}
	app.IssueService = issues.NewService(app.CandidatesRepo, app.SignalsRepo, app.ReposRepo)
	return nil
}

// buildProvider selects the LLM backend. Without credentials in dev the pipeline
// runs against the placeholder, which skips every signal.
func buildProvider(cfg config.Config) (llm.Provider, error) {
	var (
		completer llm.Completer
		err       error
	)
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" && isDevLike(cfg.Env) {
			log.Printf("bootstrap: OPENAI_API_KEY empty; LLM phase will skip signals")
			return llm.PlaceholderProvider{}, nil
		}
		completer, err = openaillm.NewClient(cfg.OpenAIAPIKey, orDefault(cfg.LLMModel, defaultOpenAIModel))
	case "anthropic":
		if cfg.AnthropicAPIKey == "" && isDevLike(cfg.Env) {
			log.Printf("bootstrap: ANTHROPIC_API_KEY empty; LLM phase will skip signals")
			return llm.PlaceholderProvider{}, nil
		}
		completer, err = anthropicllm.NewClient(cfg.AnthropicAPIKey, orDefault(cfg.LLMModel, defaultAnthropicModel))
	default:
		return llm.PlaceholderProvider{}, nil
	}
	if err != nil {
		return nil, err
	}
	structured, err := llm.NewStructuredProvider(llm.WithRetry(completer))
	if err != nil {
		return nil, err
	}
	return structured, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
