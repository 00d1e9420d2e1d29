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
	"partsiq_backend/internal/credentials"
	"partsiq_backend/internal/email"
	"partsiq_backend/internal/pricing"
	"partsiq_backend/internal/quota"
	"partsiq_backend/internal/scheduler"
	"partsiq_backend/internal/vapi"
	"partsiq_backend/platform/config"
	"partsiq_backend/platform/db"
	"partsiq_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting call worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	// ========================================================================
	// Call initiation pipeline
	// ========================================================================

	callsRepo := calls.NewRepository(pool)
	quotaSvc := quota.NewService(quota.NewRepository(pool), log)

	platformCreds := credentials.Credentials{
		APIKey:        cfg.GetVapiAPIKey(),
		PhoneNumberID: cfg.GetVapiPhoneNumberID(),
		AssistantID:   cfg.GetVapiAssistantID(),
	}
	credsResolver := credentials.NewResolver(credentials.NewRepository(pool),
		cfg.GetCredentialEncryptionKey(), platformCreds, log)

	priceResolver := pricing.NewResolver(pricing.NewRepository(pool), log)
	stateStore := callstate.NewStore(redisClient, cfg.GetCallStateTTL())
	provider := vapi.NewClient(cfg.GetVapiBaseURL())

	orchestrator := calls.NewOrchestrator(callsRepo, quotaSvc, credsResolver,
		priceResolver, stateStore, provider, cfg, log)

	schedClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = schedClient.Close() }()

	coordinator := calls.NewCoordinator(callsRepo, schedClient, cfg, log)

	var sender email.Sender
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
	} else {
		log.Warn("email disabled; fallback email jobs will be logged and dropped")
		sender = logOnlySender{log: log}
	}

	worker, err := scheduler.NewWorker(cfg, orchestrator, coordinator, callsRepo, sender, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
}

// logOnlySender stands in when SMTP is not configured so fallback jobs drain
// instead of crashing the worker.
type logOnlySender struct {
	log *logger.Logger
}

func (s logOnlySender) SendQuoteRequestEmail(_ context.Context, toEmail, supplierName, _ string, _ []callstate.Part) error {
	s.log.Warn("quote request email dropped: SMTP not configured", "to", toEmail, "supplier", supplierName)
	return nil
}

func (s logOnlySender) SendEscalationEmail(_ context.Context, toEmail, _, callID, _ string) error {
	s.log.Warn("escalation email dropped: SMTP not configured", "to", toEmail, "call_id", callID)
	return nil
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
