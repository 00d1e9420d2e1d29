// Package callwebhook is the inbound boundary for voice provider callbacks:
// one HTTP invocation per conversation turn, authenticated by a shared
// secret, serialized per call through the state store.
package callwebhook

import (
	"partsiq_backend/internal/events"
	apphttp "partsiq_backend/internal/http"
	"partsiq_backend/internal/interpreter"
	"partsiq_backend/internal/negotiation"
	"partsiq_backend/platform/config"
	"partsiq_backend/platform/logger"
)

// Module is the webhook turn-handler module implementing http.Module.
type Module struct {
	handler *Handler
	cfg     config.WebhookConfig
}

// NewModule wires the turn handler and its collaborators.
func NewModule(
	cfg config.WebhookConfig,
	store StateStore,
	machine *negotiation.Machine,
	interp interpreter.Interpreter,
	records RecordStore,
	archive Archiver,
	bus *events.Bus,
	log *logger.Logger,
) *Module {
	service := NewService(store, machine, interp, records, archive, bus, log)
	return &Module{
		handler: NewHandler(service, log),
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "callwebhook"
}

// RegisterRoutes mounts the provider callback endpoint. Secret auth, no JWT:
// the caller is the voice provider, not an operator.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhooks")
	group.Use(SecretAuthMiddleware(m.cfg))
	group.POST("/voice", m.handler.HandleTurn)
}

var _ apphttp.Module = (*Module)(nil)
