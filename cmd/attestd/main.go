// attestd runs the attestation engine with its operational surface
// (health, readiness, metrics). The engine itself is a library; domain
// traffic reaches it through the embedding API layer, not this process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veritas/internal/attestation"
	"veritas/internal/audit"
	"veritas/internal/blob"
	"veritas/internal/codec"
	"veritas/internal/ledger"
	"veritas/internal/platform/config"
	"veritas/internal/platform/httpserver"
	"veritas/internal/platform/kafka"
	"veritas/internal/platform/logger"
	"veritas/internal/platform/postgres"
	platformredis "veritas/internal/platform/redis"
	"veritas/internal/ratelimit"
	"veritas/internal/schema"
	"veritas/internal/transport/ops"
	id "veritas/pkg/domain"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("attestd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()
	checks := map[string]ops.HealthCheck{}

	// Ledger client. The external RPC transport is owned by the embedding
	// deployment; standalone runs use the in-process registry.
	client := ledger.NewMemoryClient()
	log.Info("using in-process registry", "rpc_url_configured", cfg.Ledger.RPCURL != "")

	signer, err := buildSigner(cfg.Ledger, log)
	if err != nil {
		return err
	}

	gateway, err := ledger.New(client, signer,
		ledger.WithLogger(log),
		ledger.WithChainID(cfg.Ledger.ChainID),
		ledger.WithRetry(cfg.Ledger.MaxAttempts, cfg.Ledger.BaseDelay),
		ledger.WithGasSafetyMargin(cfg.Ledger.GasSafetyMarginPct),
	)
	if err != nil {
		return err
	}

	auditor, closeAudit, err := buildAuditor(cfg.Audit, log, checks)
	if err != nil {
		return err
	}
	defer closeAudit()

	schemas, err := schema.New(gateway,
		schema.WithLogger(log),
		schema.WithCacheTTL(cfg.Engine.CacheTTL),
		schema.WithAuditPublisher(auditor),
	)
	if err != nil {
		return err
	}

	schemaUID, err := resolveSchema(ctx, cfg.Engine, schemas, log)
	if err != nil {
		return err
	}

	transformer, err := codec.NewTransformer(cfg.Engine.SubjectHashSalt)
	if err != nil {
		return err
	}
	enc, err := codec.NewCodec()
	if err != nil {
		return err
	}

	limiter, closeRedis, err := buildLimiter(cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeDB, err := buildStore(cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeDB()

	opts := []attestation.Option{
		attestation.WithLogger(log),
		attestation.WithAuditPublisher(auditor),
	}
	if cfg.Blob.Enabled {
		opts = append(opts, attestation.WithBlobUploader(blob.NewMemoryUploader()))
	}

	engine, err := attestation.New(gateway, schemas, transformer, enc, limiter, store,
		attestation.Settings{
			DefaultSchemaUID:       schemaUID,
			DefaultExpirationHours: cfg.Engine.DefaultExpirationHours,
			RevocationEnabled:      cfg.Engine.RevocationEnabled,
			BatchSize:              cfg.Engine.BatchSize,
			CacheTTL:               cfg.Engine.CacheTTL,
		}, opts...)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, ops.NewRouter(checks, ops.WithInspector(engine)))
	log.Info("attestd started",
		"ops_addr", cfg.Server.Addr,
		"schema_uid", schemaUID,
		"chain_id", cfg.Ledger.ChainID,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("attestd stopped")
	return nil
}

func buildSigner(cfg config.Ledger, log *slog.Logger) (*ledger.CoseSigner, error) {
	if cfg.SigningKeySeed != "" {
		return ledger.NewCoseSigner(cfg.SigningKeySeed)
	}
	signer, err := ledger.GenerateCoseSigner()
	if err != nil {
		return nil, err
	}
	log.Warn("generated ephemeral signing key", "attester", signer.Address())
	return signer, nil
}

// resolveSchema uses the configured schema uid, or registers the default
// layout on first boot against an empty registry.
func resolveSchema(ctx context.Context, cfg config.Engine, schemas *schema.Service, log *slog.Logger) (id.SchemaUID, error) {
	if cfg.DefaultSchemaUID != "" {
		return id.ParseSchemaUID(cfg.DefaultSchemaUID)
	}
	uid, err := schemas.Register(ctx,
		"kyc-attestation", "privacy-preserving identity verification outcome",
		codec.DefaultSchemaFields, codec.PayloadSchemaVersion, true)
	if err != nil {
		return "", err
	}
	log.Info("registered default attestation schema", "schema_uid", uid)
	return uid, nil
}

func buildLimiter(cfg config.Config, log *slog.Logger, checks map[string]ops.HealthCheck) (*ratelimit.Limiter, func(), error) {
	limits := ratelimit.Limits{MaxPerHour: cfg.RateLimit.MaxPerHour, MaxPerDay: cfg.RateLimit.MaxPerDay}
	closer := func() {}

	var store ratelimit.BucketStore
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if redisClient != nil {
		redisStore, err := ratelimit.NewRedisBucketStore(redisClient.Client)
		if err != nil {
			return nil, nil, err
		}
		store = redisStore
		checks["redis"] = redisClient.Health
		closer = func() { _ = redisClient.Close() }
		log.Info("rate limiter backed by redis")
	} else {
		store = ratelimit.NewInMemoryBucketStore()
		log.Info("rate limiter backed by process memory")
	}

	limiter, err := ratelimit.New(store, limits, ratelimit.WithLogger(log))
	if err != nil {
		closer()
		return nil, nil, err
	}
	return limiter, closer, nil
}

func buildStore(cfg config.Config, log *slog.Logger, checks map[string]ops.HealthCheck) (attestation.Store, func(), error) {
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		log.Info("attestation store backed by process memory")
		return attestation.NewMemoryStore(), func() {}, nil
	}
	checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	log.Info("attestation store backed by postgres")
	return attestation.NewPostgres(db), func() { _ = db.Close() }, nil
}

func buildAuditor(cfg config.Audit, log *slog.Logger, checks map[string]ops.HealthCheck) (*audit.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Info("audit trail backed by process memory")
		return audit.NewPublisher(audit.NewMemoryStore(), audit.WithLogger(log)), func() {}, nil
	}

	producer, err := kafka.NewProducer(cfg.Brokers)
	if err != nil {
		return nil, nil, err
	}
	sink, err := audit.NewKafkaSink(producer, cfg.Topic)
	if err != nil {
		producer.Close()
		return nil, nil, err
	}

	// Events are handed off through a buffered inbox so issuance never
	// waits on a broker round trip.
	inbox := make(chan audit.Event, 256)
	worker := audit.NewWorker(sink, inbox, audit.WithWorkerLogger(log))
	workerCtx, stopWorker := context.WithCancel(context.Background())
	go func() { _ = worker.Run(workerCtx) }()

	checks["kafka"] = producer.Health
	log.Info("audit trail publishing to kafka", "topic", cfg.Topic)
	closer := func() {
		stopWorker()
		producer.Close()
	}
	return audit.NewPublisher(audit.NewChannelSink(inbox), audit.WithLogger(log)), closer, nil
}
