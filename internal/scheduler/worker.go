package scheduler

import (
	"context"
	"fmt"

	"partsiq_backend/internal/calls"
	"partsiq_backend/internal/email"
	"partsiq_backend/platform/config"
	"partsiq_backend/platform/logger"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"
)

// Worker consumes the call queues. Initiate and retry jobs run the call
// orchestrator; fallback email jobs send the quote request over SMTP.
type Worker struct {
	server       *asynq.Server
	mux          *asynq.ServeMux
	orchestrator *calls.Orchestrator
	coordinator  *calls.Coordinator
	repo         *calls.Repository
	sender       email.Sender
	limiter      *rate.Limiter
	log          *logger.Logger
}

func NewWorker(
	cfg config.SchedulerConfig,
	orchestrator *calls.Orchestrator,
	coordinator *calls.Coordinator,
	repo *calls.Repository,
	sender email.Sender,
	log *logger.Logger,
) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueInitiate: 5,
			QueueRetry:    3,
			QueueEmail:    2,
		},
	})

	perSecond := cfg.GetCallInitiateRate()
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.GetCallInitiateBurst()
	if burst < 1 {
		burst = 1
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:       server,
		mux:          mux,
		orchestrator: orchestrator,
		coordinator:  coordinator,
		repo:         repo,
		sender:       sender,
		limiter:      rate.NewLimiter(rate.Limit(perSecond), burst),
		log:          log,
	}

	mux.HandleFunc(TaskCallInitiate, w.handleCallAttempt)
	mux.HandleFunc(TaskCallRetry, w.handleCallAttempt)
	mux.HandleFunc(TaskFallbackEmail, w.handleFallbackEmail)

	return w, nil
}

// handleCallAttempt runs one call attempt. Failures route through the retry
// coordinator, so the handler itself never asks asynq to retry.
func (w *Worker) handleCallAttempt(ctx context.Context, task *asynq.Task) error {
	req, err := ParseInitiatePayload(task)
	if err != nil {
		w.log.Error("call task payload invalid", "error", err)
		return nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := w.orchestrator.Initiate(ctx, req); err != nil {
		w.log.Warn("call attempt failed", "error", err,
			"quote_request_id", req.QuoteRequestID,
			"supplier_id", req.SupplierID,
			"attempt", req.Attempt)
		if herr := w.coordinator.HandleFailure(ctx, req, err); herr != nil {
			w.log.Error("failure handling incomplete", "error", herr,
				"supplier_id", req.SupplierID)
		}
	}
	return nil
}

func (w *Worker) handleFallbackEmail(ctx context.Context, task *asynq.Task) error {
	req, err := ParseInitiatePayload(task)
	if err != nil {
		w.log.Error("fallback email payload invalid", "error", err)
		return nil
	}

	supplier, err := w.repo.GetSupplier(ctx, req.OrganizationID, req.SupplierID)
	if err != nil {
		w.log.Error("fallback email supplier lookup failed", "error", err,
			"supplier_id", req.SupplierID)
		return nil
	}
	if supplier.Email == "" {
		w.log.Warn("fallback email skipped: supplier has no email address",
			"supplier_id", req.SupplierID)
		return nil
	}

	org, err := w.repo.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		w.log.Error("fallback email organization lookup failed", "error", err,
			"organization_id", req.OrganizationID)
		return nil
	}

	parts, err := w.repo.GetQuoteRequestParts(ctx, req.QuoteRequestID)
	if err != nil {
		w.log.Error("fallback email parts lookup failed", "error", err,
			"quote_request_id", req.QuoteRequestID)
		return nil
	}

	if err := w.sender.SendQuoteRequestEmail(ctx, supplier.Email, supplier.Name, org.Name, parts); err != nil {
		w.log.Error("fallback email send failed", "error", err,
			"supplier_id", req.SupplierID)
		return nil
	}

	w.log.Info("fallback email sent",
		"supplier_id", req.SupplierID,
		"quote_request_id", req.QuoteRequestID)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
