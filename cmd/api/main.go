package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partsiq_backend/internal/calls"
	"partsiq_backend/internal/callstate"
	"partsiq_backend/internal/callwebhook"
	"partsiq_backend/internal/email"
	"partsiq_backend/internal/events"
	apphttp "partsiq_backend/internal/http"
	"partsiq_backend/internal/http/router"
	"partsiq_backend/internal/interpreter"
	"partsiq_backend/internal/negotiation"
	"partsiq_backend/internal/recordings"
	"partsiq_backend/internal/scheduler"
	"partsiq_backend/platform/config"
	"partsiq_backend/platform/db"
	"partsiq_backend/platform/logger"
	"partsiq_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	eventBus := events.NewBus()
	val := validator.New()

	schedClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = schedClient.Close() }()

	// Recording archival is optional; without MinIO the provider URL is kept.
	var archiver callwebhook.Archiver
	if cfg.IsStorageEnabled() {
		minioClient, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
			Creds:  miniocreds.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
			Secure: cfg.GetMinIOUseSSL(),
		})
		if err != nil {
			log.Error("failed to initialize recording storage", "error", err)
			panic("failed to initialize recording storage: " + err.Error())
		}
		storage := recordings.NewStorage(minioClient, cfg.GetRecordingsBucket())
		if err := withRetry(ctx, log, "ensure recordings bucket", 5, 2*time.Second, func() error {
			return storage.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure recordings bucket", "error", err)
			panic("failed to ensure recordings bucket: " + err.Error())
		}
		archiver = storage
		log.Info("recording storage initialized", "bucket", cfg.GetRecordingsBucket())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; call recordings stay at the provider")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	callsModule := calls.NewModule(pool, schedClient, val, log)

	stateStore := callstate.NewStore(redisClient, cfg.GetCallStateTTL())
	machine := negotiation.NewMachine(negotiation.Policy{
		MaxNegotiationAttempts:   cfg.GetNegotiationMaxAttempts(),
		MaxClarificationAttempts: cfg.GetClarificationMaxAttempts(),
		ToleranceBps:             int64(cfg.GetNegotiationToleranceBps()),
	})
	interp := newInterpreter(ctx, cfg, log)

	webhookModule := callwebhook.NewModule(cfg, stateStore, machine, interp,
		callsModule.Repository, archiver, eventBus, log)

	if cfg.GetEmailEnabled() {
		sender := email.NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
		notifier := email.NewEscalationNotifier(sender,
			supplierDirectory{repo: callsModule.Repository},
			cfg.GetOpsEmailAddress(), log)
		eventBus.Subscribe(notifier.Handle)
	} else {
		log.Warn("email disabled; escalations are only visible in call records")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			callsModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// newInterpreter prefers the LLM interpreter with the rule parser as its
// fallback; without an API key the rule parser runs alone.
func newInterpreter(ctx context.Context, cfg *config.Config, log *logger.Logger) interpreter.Interpreter {
	rules := interpreter.NewRuleBased()
	if !cfg.IsLLMInterpreterEnabled() {
		log.Warn("GEMINI_API_KEY not configured; using rule-based interpreter only")
		return rules
	}

	gemini, err := interpreter.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel(), rules, log)
	if err != nil {
		log.Error("failed to initialize LLM interpreter, falling back to rules", "error", err)
		return rules
	}
	return gemini
}

// supplierDirectory adapts the calls repository to the escalation notifier's
// narrow lookup.
type supplierDirectory struct {
	repo *calls.Repository
}

func (d supplierDirectory) SupplierName(ctx context.Context, orgID, supplierID uuid.UUID) (string, error) {
	s, err := d.repo.GetSupplier(ctx, orgID, supplierID)
	if err != nil {
		return "", err
	}
	return s.Name, nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
