package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"onboarding/internal/decision"
	decisionmetrics "onboarding/internal/decision/metrics"
	"onboarding/internal/outbox"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/logger"
	"onboarding/internal/platform/postgres"
	"onboarding/internal/platform/redis"
	"onboarding/internal/platform/tracing"
	"onboarding/internal/vault"
	"onboarding/internal/vendors"
	"onboarding/internal/vendors/incode"
	"onboarding/internal/vendors/kyb"
	"onboarding/internal/vendors/kyc"
	vendormetrics "onboarding/internal/vendors/metrics"
	"onboarding/internal/verification"
	workflowmetrics "onboarding/internal/workflow/metrics"
	"onboarding/internal/workflow/scheduler"
	"onboarding/internal/workflow/service"
	"onboarding/internal/workflow/store"
	"onboarding/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

// main wires the decisioning core. The workflow service is driven by the scheduler; the
// only listener is the ops server.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("flush traces", "error", err)
		}
	}()

	checks := map[string]httpserver.Check{}
	wfMetrics := workflowmetrics.New()
	stores, closeStores, err := openStores(ctx, cfg.Database, log, wfMetrics)
	if err != nil {
		return err
	}
	defer closeStores()
	if stores.db != nil {
		checks["postgres"] = stores.db.PingContext
	}

	book, err := loadRuleBook(cfg.RulesPath)
	if err != nil {
		return err
	}

	sealer, err := verification.NewSealer(cfg.SealKey)
	if err != nil {
		return fmt.Errorf("create response sealer: %w", err)
	}
	vendorMetrics := vendormetrics.New()
	recorder := verification.NewRecorder(stores.verification, sealer,
		verification.WithLogger(log),
		verification.WithMetrics(vendorMetrics),
	)
	reader := vault.NewInMemory()

	guard := func(name vendors.Name) *vendors.Guard {
		return vendors.NewGuard(name,
			vendors.WithRateLimit(cfg.Vendors.RateLimit, cfg.Vendors.Burst),
			vendors.WithBreaker(circuit.New(string(name),
				circuit.WithFailureThreshold(cfg.Vendors.FailureThreshold),
				circuit.WithCooldown(cfg.Vendors.Cooldown),
			)),
			vendors.WithTimeout(cfg.Vendors.Timeout),
			vendors.WithGuardMetrics(vendorMetrics),
			vendors.WithGuardLogger(log),
		)
	}

	identity, err := identityVendors(cfg.Vendors.Identity, recorder, guard, log)
	if err != nil {
		return err
	}
	business, err := businessVendors(cfg.Vendors.Business, recorder, guard, log)
	if err != nil {
		return err
	}
	documents, err := incode.New(stores.incode, incode.NewSandboxClient(), recorder, reader,
		incode.WithLogger(log),
		incode.WithMetrics(vendorMetrics),
		incode.WithGuard(guard(vendors.Incode)),
		incode.WithMaxAttempts(cfg.Vendors.IncodeMaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("create document service: %w", err)
	}

	workflows, err := service.New(stores.workflow, reader,
		service.WithLogger(log),
		service.WithMetrics(wfMetrics),
		service.WithDecisionMetrics(decisionmetrics.New()),
		service.WithRuleBook(book),
		service.WithIdentityVendors(identity),
		service.WithBusinessVendors(business),
		service.WithDocumentSessions(documents),
	)
	if err != nil {
		return fmt.Errorf("create workflow service: %w", err)
	}

	lease, closeLease, err := openLease(ctx, cfg.Redis, checks)
	if err != nil {
		return err
	}
	defer closeLease()
	sched, err := scheduler.New(workflows, lease,
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithConcurrency(cfg.Scheduler.Concurrency),
		scheduler.WithLeaseTTL(cfg.Scheduler.LeaseTTL),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(wfMetrics),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(sched.Run(gctx)) })

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		if err := publisher.EnsureTopic(ctx, 3, 1); err != nil {
			return err
		}
		checks["kafka"] = publisher.Health
		relay := outbox.NewRelay(stores.outbox, publisher,
			outbox.WithInterval(cfg.Kafka.RelayInterval),
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics()),
		)
		g.Go(func() error { return ignoreCancel(relay.Run(gctx)) })
	} else {
		log.Info("no kafka brokers configured, transition notifications stay in the outbox")
	}

	srv := httpserver.New(cfg.OpsAddr, httpserver.NewOpsRouter(checks, log))
	g.Go(func() error {
		log.Info("starting ops server", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type storeSet struct {
	db           *sql.DB
	workflow     store.Store
	outbox       outbox.Store
	verification verification.Store
	incode       incode.Store
}

// openStores uses Postgres when a database URL is configured and memory otherwise.
func openStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, m *workflowmetrics.Metrics) (*storeSet, func(), error) {
	if cfg.URL == "" {
		log.Warn("no database configured, using in-memory stores")
		ob := outbox.NewInMemoryStore()
		verif := verification.NewInMemoryStore()
		return &storeSet{
			workflow:     store.NewInMemoryStore(ob),
			outbox:       ob,
			verification: verif,
			incode:       incode.NewInMemoryStore(verif),
		}, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	ob := outbox.NewPostgresStore(db)
	verif := verification.NewPostgresStore(db)
	return &storeSet{
		db:           db,
		workflow:     store.NewPostgresStore(db, ob, store.WithLogger(log), store.WithMetrics(m)),
		outbox:       ob,
		verification: verif,
		incode:       incode.NewPostgresStore(db, verif),
	}, func() { _ = db.Close() }, nil
}

func openLease(ctx context.Context, cfg config.RedisConfig, checks map[string]httpserver.Check) (scheduler.Lease, func(), error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return scheduler.NewMemoryLease(), func() {}, nil
	}
	checks["redis"] = client.Health
	return scheduler.NewRedisLease(client, "onboarding:lease:"), func() { _ = client.Close() }, nil
}

func loadRuleBook(path string) (*decision.RuleBook, error) {
	if path == "" {
		return decision.DefaultRuleBook(), nil
	}
	file, err := decision.LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	return decision.NewRuleBook(file)
}

var (
	identitySandboxes = map[vendors.Name]vendors.API{
		vendors.Idology:  vendors.IdologyExpectID,
		vendors.Experian: vendors.ExperianPreciseID,
	}
	businessSandboxes = map[vendors.Name][2]vendors.API{
		vendors.Middesk: {vendors.MiddeskCreateOrder, vendors.MiddeskGetBusiness},
		vendors.Lexis:   {vendors.LexisBusinessID, vendors.LexisBusinessResult},
	}
)

func identityVendors(names []string, recorder *verification.Recorder, guard func(vendors.Name) *vendors.Guard, log *slog.Logger) (*kyc.Service, error) {
	registry := vendors.NewRegistry[kyc.Client]()
	opts := []kyc.Option{kyc.WithLogger(log)}
	for _, raw := range names {
		name := vendors.Name(raw)
		api, ok := identitySandboxes[name]
		if !ok {
			return nil, fmt.Errorf("unknown identity vendor %q", raw)
		}
		if err := registry.Register(kyc.NewSandboxClient(name, api)); err != nil {
			return nil, err
		}
		opts = append(opts, kyc.WithGuard(name, guard(name)))
	}
	return kyc.New(registry, recorder, opts...)
}

func businessVendors(names []string, recorder *verification.Recorder, guard func(vendors.Name) *vendors.Guard, log *slog.Logger) (*kyb.Service, error) {
	registry := vendors.NewRegistry[kyb.Client]()
	opts := []kyb.Option{kyb.WithLogger(log)}
	for _, raw := range names {
		name := vendors.Name(raw)
		apis, ok := businessSandboxes[name]
		if !ok {
			return nil, fmt.Errorf("unknown business vendor %q", raw)
		}
		if err := registry.Register(kyb.NewSandboxClient(name, apis[0], apis[1])); err != nil {
			return nil, err
		}
		opts = append(opts, kyb.WithGuard(name, guard(name)))
	}
	return kyb.New(registry, recorder, opts...)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
