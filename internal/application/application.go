// Package application wires configuration into a running chat backend. Both
// the HTTP server and the Lambda entrypoint build the same App.
package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"chatdesk/handler"
	"chatdesk/internal/clock"
	"chatdesk/internal/config"
	"chatdesk/internal/domain"
	"chatdesk/internal/integrations/openai"
	"chatdesk/internal/integrations/paramstore"
	"chatdesk/internal/metrics"
	"chatdesk/internal/notify"
	"chatdesk/internal/ratelimit"
	"chatdesk/internal/repository"
	"chatdesk/internal/session"
	"chatdesk/internal/tenant"
	"chatdesk/internal/triage"
	"chatdesk/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired service graph.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	handler *handler.Handler
	sweeper *session.Sweeper
	closers []func() error
}

// New builds every collaborator from cfg. AWS configuration is loaded only
// when a component needs it.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log}
	loader := &awsLoader{}

	var params tenant.ParamGetter
	if needsParamStore(cfg) {
		ps, err := loader.paramStore(ctx)
		if err != nil {
			return nil, err
		}
		params = ps
	}

	profiles, err := LoadTenants(ctx, cfg, params)
	if err != nil {
		return nil, err
	}
	resolver := tenant.NewResolver(profiles...)

	llmOpts := []openai.Option{
		openai.WithAPIKey(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.OpenAIModel),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout + 5*time.Second}),
	}
	if cfg.OpenAIBaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.NewClient(params, cfg.ParamPrefix, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	store, err := a.openStore(ctx, loader)
	if err != nil {
		return nil, err
	}

	classifier, err := loadClassifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	kafka := notify.NewKafka(notify.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, log)
	a.closers = append(a.closers, kafka.Close)
	publisher := notify.Multi{notify.NewLog(log)}
	if kafka.Enabled() {
		publisher = append(publisher, kafka)
	}

	m := metrics.New()
	clk := clock.Real()
	sessions := session.New(session.Options{
		TTL:         cfg.SessionTTL,
		MaxMessages: cfg.SessionMaxMessages,
		Clock:       clk,
	})
	limiter := ratelimit.New(cfg.RateLimitStrategy, cfg.RateLimitWindow, cfg.RateLimitMax, clk)
	locks := usecase.NewKeyLocks()

	chat, err := usecase.NewChatService(usecase.ChatDeps{
		Limiter:    limiter,
		Sessions:   sessions,
		Tickets:    store,
		Profiles:   resolver,
		LLM:        llm,
		Classifier: classifier,
		Publisher:  publisher,
		Metrics:    m,
		Locks:      locks,
		Logger:     log,
		Clock:      clk,
	}, usecase.ChatOptions{
		MaxMessageLength: cfg.MaxMessageLength,
		LLMTimeout:       cfg.LLMTimeout,
		ContextMessages:  cfg.SessionMaxMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat service: %w", err)
	}
	tickets, err := usecase.NewTicketService(usecase.TicketDeps{
		Store:     store,
		Publisher: publisher,
		Metrics:   m,
		Locks:     locks,
		Logger:    log,
		Clock:     clk,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket service: %w", err)
	}

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty; agent ticket routes will reject every request")
	}
	a.handler, err = handler.NewHandler(handler.Deps{
		Chat:       chat,
		Tickets:    tickets,
		Metrics:    m.Handler(),
		JWTSecret:  cfg.JWTSecret,
		TrustProxy: cfg.TrustProxy,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("handler: %w", err)
	}

	a.sweeper = session.NewSweeper(sessions, cfg.SweepInterval, clk, log, limiter)
	a.sweeper.Observe = m.Sweep

	log.Info("application ready",
		zap.String("store", cfg.StoreBackend),
		zap.String("model", llm.Model()),
		zap.Int("tenants", resolver.Len()),
		zap.Bool("kafka", kafka.Enabled()),
	)
	return a, nil
}

func (a *App) Handler() *handler.Handler { return a.handler }

// Sweep runs the session sweeper until ctx is cancelled.
func (a *App) Sweep(ctx context.Context) { a.sweeper.Run(ctx) }

// Run serves HTTP on cfg.Addr() and sweeps sessions until ctx is cancelled,
// then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      a.cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.Sweep(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.log.Info("http server stopped")
	return nil
}

// Close releases stores and writers in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context, loader *awsLoader) (usecase.TicketStore, error) {
	switch a.cfg.StoreBackend {
	case config.StoreDynamoDB:
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), a.cfg.DynamoDBTable)
		if err != nil {
			return nil, fmt.Errorf("dynamodb store: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		store, err := repository.OpenPostgres(a.cfg.DSN())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		a.log.Warn("using in-memory ticket store; tickets are lost on restart")
		return repository.NewMemory(), nil
	}
}

// LoadTenants reads profile overrides from the file and then the parameter
// store; later entries win. params may be nil when no parameter is configured.
func LoadTenants(ctx context.Context, cfg *config.Config, params tenant.ParamGetter) ([]domain.TenantProfile, error) {
	var out []domain.TenantProfile
	if cfg.TenantProfilesFile != "" {
		ps, err := tenant.LoadFile(cfg.TenantProfilesFile)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	if cfg.TenantProfilesParam != "" {
		if params == nil {
			return nil, errors.New("tenant: parameter store is not configured")
		}
		ps, err := tenant.LoadParam(ctx, params, paramstore.Join(cfg.ParamPrefix, cfg.TenantProfilesParam))
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

func loadClassifier(ctx context.Context, cfg *config.Config) (*triage.Rego, error) {
	if cfg.TriagePolicyFile != "" {
		return triage.LoadRego(ctx, cfg.TriagePolicyFile)
	}
	return triage.NewRego(ctx, triage.DefaultPolicy)
}

// NewParamStore connects to SSM with the default AWS configuration.
func NewParamStore(ctx context.Context) (*paramstore.Client, error) {
	return (&awsLoader{}).paramStore(ctx)
}

func needsParamStore(cfg *config.Config) bool {
	return cfg.OpenAIAPIKey == "" || cfg.TenantProfilesParam != ""
}

// awsLoader loads the default AWS configuration at most once.
type awsLoader struct {
	cfg    *aws.Config
	loaded bool
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return *l.cfg, nil
	}
	c, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	l.cfg, l.loaded = &c, true
	return c, nil
}

func (l *awsLoader) paramStore(ctx context.Context) (*paramstore.Client, error) {
	awsCfg, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("paramstore: %w", err)
	}
	return ps, nil
}
