// Package email delivers fallback quote requests to suppliers and escalation
// notices to the operations inbox over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"partsiq_backend/internal/callstate"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers the two email shapes this service produces.
type Sender interface {
	// SendQuoteRequestEmail asks a supplier for pricing by email, used when
	// calling is not requested or all call attempts are exhausted.
	SendQuoteRequestEmail(ctx context.Context, toEmail, supplierName, organizationName string, parts []callstate.Part) error
	// SendEscalationEmail notifies operations that a call needs a human.
	SendEscalationEmail(ctx context.Context, toEmail, supplierName, callID, reason string) error
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// SendQuoteRequestEmail renders and delivers the supplier quote request.
func (s *SMTPSender) SendQuoteRequestEmail(ctx context.Context, toEmail, supplierName, organizationName string, parts []callstate.Part) error {
	items := make([]quoteRequestItem, 0, len(parts))
	for _, p := range parts {
		items = append(items, quoteRequestItem{
			PartNumber:  p.PartNumber,
			Description: p.Description,
			Quantity:    p.Quantity,
		})
	}

	content, err := renderEmailTemplate("quote_request.html", quoteRequestEmailData{
		baseEmailData: baseEmailData{
			Title:   "Quote request",
			Heading: fmt.Sprintf("Quote request from %s", organizationName),
		},
		SupplierName:     supplierName,
		OrganizationName: organizationName,
		Items:            items,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectQuoteRequestFmt, organizationName), content)
}

// SendEscalationEmail renders and delivers the human-escalation notice.
func (s *SMTPSender) SendEscalationEmail(ctx context.Context, toEmail, supplierName, callID, reason string) error {
	content, err := renderEmailTemplate("escalation.html", escalationEmailData{
		baseEmailData: baseEmailData{
			Title:   "Call needs attention",
			Heading: "A supplier call needs a human follow-up",
		},
		SupplierName: supplierName,
		CallID:       callID,
		Reason:       reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectEscalationFmt, supplierName), content)
}
