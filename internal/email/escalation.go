package email

import (
	"context"
	"time"

	"partsiq_backend/internal/events"
	"partsiq_backend/platform/logger"

	"github.com/google/uuid"
)

// SupplierNamer resolves the supplier a call event refers to.
type SupplierNamer interface {
	SupplierName(ctx context.Context, orgID, supplierID uuid.UUID) (string, error)
}

// EscalationNotifier turns CallEscalated events into an operations email so a
// human picks the thread up.
type EscalationNotifier struct {
	sender    Sender
	suppliers SupplierNamer
	opsEmail  string
	log       *logger.Logger
}

// NewEscalationNotifier creates the notifier. Register its Handle method on
// the event bus.
func NewEscalationNotifier(sender Sender, suppliers SupplierNamer, opsEmail string, log *logger.Logger) *EscalationNotifier {
	return &EscalationNotifier{
		sender:    sender,
		suppliers: suppliers,
		opsEmail:  opsEmail,
		log:       log,
	}
}

// Handle is an events.Handler. Only escalations produce mail.
func (n *EscalationNotifier) Handle(ctx context.Context, ev events.CallEvent) {
	if ev.Type != events.CallEscalated {
		return
	}
	if n.opsEmail == "" {
		n.log.Warn("escalation email skipped: no ops address configured", "call_id", ev.CallID)
		return
	}

	// The bus hands us the request context of a webhook that has already
	// responded; detach so the send is not cancelled mid-flight.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	supplierName := "unknown supplier"
	if name, err := n.suppliers.SupplierName(sendCtx, ev.OrganizationID, ev.SupplierID); err == nil && name != "" {
		supplierName = name
	}

	if err := n.sender.SendEscalationEmail(sendCtx, n.opsEmail, supplierName, ev.CallID, ev.Reason); err != nil {
		n.log.Error("escalation email failed", "error", err, "call_id", ev.CallID)
		return
	}

	n.log.Info("escalation email sent", "call_id", ev.CallID, "supplier", supplierName)
}
