package calls

import (
	apphttp "partsiq_backend/internal/http"
	"partsiq_backend/platform/logger"
	"partsiq_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the calls domain module: submission API plus the repository the
// worker-side orchestrator shares.
type Module struct {
	handler    *Handler
	Repository *Repository
	Service    *Service
}

// NewModule wires the calls module.
func NewModule(pool *pgxpool.Pool, scheduler TaskScheduler, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo, scheduler, log)
	h := NewHandler(svc, val, log)

	return &Module{
		handler:    h,
		Repository: repo,
		Service:    svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "calls"
}

// RegisterRoutes mounts the module's routes under /api/v1/calls.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	calls := ctx.Protected.Group("/calls")
	m.handler.RegisterRoutes(calls)
}

var _ apphttp.Module = (*Module)(nil)
