package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partsiq_backend/internal/callstate"
	"partsiq_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists call records and their extracted quotes.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a calls repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetSupplier loads a supplier scoped to the organization.
func (r *Repository) GetSupplier(ctx context.Context, orgID, supplierID uuid.UUID) (*Supplier, error) {
	s := &Supplier{ID: supplierID}
	var phone, email *string
	err := r.db.QueryRow(ctx, `
		SELECT name, phone, email
		FROM suppliers
		WHERE id = $1 AND organization_id = $2`,
		supplierID, orgID,
	).Scan(&s.Name, &phone, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("supplier not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query supplier: %w", err)
	}
	if phone != nil {
		s.Phone = *phone
	}
	if email != nil {
		s.Email = *email
	}
	return s, nil
}

// GetOrganization loads the organization fields call placement needs.
func (r *Repository) GetOrganization(ctx context.Context, orgID uuid.UUID) (*Organization, error) {
	o := &Organization{ID: orgID}
	err := r.db.QueryRow(ctx, `
		SELECT name, default_phone_region
		FROM organizations
		WHERE id = $1`,
		orgID,
	).Scan(&o.Name, &o.DefaultPhoneRegion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return o, nil
}

// GetQuoteRequestParts loads the part lines of a quote request in order.
func (r *Repository) GetQuoteRequestParts(ctx context.Context, quoteRequestID uuid.UUID) ([]callstate.Part, error) {
	rows, err := r.db.Query(ctx, `
		SELECT part_number, description, quantity, source
		FROM quote_request_parts
		WHERE quote_request_id = $1
		ORDER BY sort_order`,
		quoteRequestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quote request parts: %w", err)
	}
	defer rows.Close()

	var parts []callstate.Part
	for rows.Next() {
		var p callstate.Part
		if err := rows.Scan(&p.PartNumber, &p.Description, &p.Quantity, &p.Source); err != nil {
			return nil, fmt.Errorf("scan quote request part: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote request parts: %w", err)
	}
	if len(parts) == 0 {
		return nil, apperr.Validation("quote request has no parts")
	}
	return parts, nil
}

// CreateRecord inserts a new INITIATED call record.
func (r *Repository) CreateRecord(ctx context.Context, rec *CallRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO call_records (id, quote_request_id, supplier_id, organization_id,
			phone_number, status, attempt, overage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.QuoteRequestID, rec.SupplierID, rec.OrganizationID,
		rec.PhoneNumber, StatusInitiated, rec.Attempt, rec.Overage,
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// SubmitBookkeeping records a successful provider submission: the record
// moves to RINGING with the provider call id and the organization's monthly
// usage counter increments, as one transaction.
func (r *Repository) SubmitBookkeeping(ctx context.Context, callRecordID uuid.UUID, orgID uuid.UUID, providerCallID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bookkeeping tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE call_records
		SET status = $2, provider_call_id = $3
		WHERE id = $1`,
		callRecordID, StatusRinging, providerCallID,
	); err != nil {
		return fmt.Errorf("update call record: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE organization_quotas
		SET calls_used = calls_used + 1
		WHERE organization_id = $1`,
		orgID,
	); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bookkeeping tx: %w", err)
	}
	return nil
}

// MarkLatestInitiatedFailed marks the most recent INITIATED record for the
// quote/supplier pair as FAILED with the reason. Returns the attempt number
// of the failed record, or 0 when none existed.
func (r *Repository) MarkLatestInitiatedFailed(ctx context.Context, quoteRequestID, supplierID uuid.UUID, reason string) (int, error) {
	var attempt int
	err := r.db.QueryRow(ctx, `
		UPDATE call_records
		SET status = $3, failure_reason = $4, ended_at = now()
		WHERE id = (
			SELECT id FROM call_records
			WHERE quote_request_id = $1 AND supplier_id = $2 AND status = $5
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING attempt`,
		quoteRequestID, supplierID, StatusFailed, reason, StatusInitiated,
	).Scan(&attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mark call failed: %w", err)
	}
	return attempt, nil
}

// MarkTerminal finalizes a record with its outcome, transcript, and
// recording location.
func (r *Repository) MarkTerminal(ctx context.Context, callRecordID uuid.UUID, status, endedReason string, transcript []callstate.Entry, recordingURL string, endedAt time.Time) error {
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		UPDATE call_records
		SET status = $2, ended_reason = $3, transcript = $4, recording_url = $5, ended_at = $6
		WHERE id = $1`,
		callRecordID, status, endedReason, transcriptJSON, nullableText(recordingURL), endedAt,
	)
	if err != nil {
		return fmt.Errorf("finalize call record: %w", err)
	}
	return nil
}

// SetRecordingURL updates the archived recording location. Best-effort
// callers ignore the error after logging.
func (r *Repository) SetRecordingURL(ctx context.Context, callRecordID uuid.UUID, url string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE call_records SET recording_url = $2 WHERE id = $1`,
		callRecordID, url,
	)
	if err != nil {
		return fmt.Errorf("set recording url: %w", err)
	}
	return nil
}

// InsertExtractedQuotes persists the per-part outcomes of a finished call and
// feeds priced lines into the organization's quote history for future
// reference pricing.
func (r *Repository) InsertExtractedQuotes(ctx context.Context, rec *CallRecord, quotes []callstate.QuoteLine) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin quotes tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range quotes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO call_quotes (id, call_record_id, part_number, unit_price_cents,
				availability, lead_time_days, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), rec.ID, q.PartNumber, q.PriceCents,
			availabilityOrDefault(q.Availability), q.LeadTimeDays, q.Notes,
		); err != nil {
			return fmt.Errorf("insert call quote: %w", err)
		}

		if q.PriceCents != nil && *q.PriceCents > 0 {
			if _, err := tx.Exec(ctx, `
				INSERT INTO quote_item_history (id, organization_id, supplier_id, part_number, unit_price_cents)
				VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), rec.OrganizationID, rec.SupplierID, q.PartNumber, *q.PriceCents,
			); err != nil {
				return fmt.Errorf("insert quote history: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit quotes tx: %w", err)
	}
	return nil
}

// GetRecord loads one call record scoped to the organization.
func (r *Repository) GetRecord(ctx context.Context, orgID, callRecordID uuid.UUID) (*CallRecord, error) {
	rec := &CallRecord{}
	var providerCallID, failureReason, endedReason, recordingURL *string
	err := r.db.QueryRow(ctx, `
		SELECT id, quote_request_id, supplier_id, organization_id, phone_number,
		       status, provider_call_id, attempt, overage, failure_reason,
		       ended_reason, recording_url, created_at, ended_at
		FROM call_records
		WHERE id = $1 AND organization_id = $2`,
		callRecordID, orgID,
	).Scan(
		&rec.ID, &rec.QuoteRequestID, &rec.SupplierID, &rec.OrganizationID, &rec.PhoneNumber,
		&rec.Status, &providerCallID, &rec.Attempt, &rec.Overage, &failureReason,
		&endedReason, &recordingURL, &rec.CreatedAt, &rec.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("call record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query call record: %w", err)
	}

	if providerCallID != nil {
		rec.ProviderCallID = *providerCallID
	}
	if failureReason != nil {
		rec.FailureReason = *failureReason
	}
	if endedReason != nil {
		rec.EndedReason = *endedReason
	}
	if recordingURL != nil {
		rec.RecordingURL = *recordingURL
	}
	return rec, nil
}

// ListQuotes returns the extracted per-part quotes of a call record.
func (r *Repository) ListQuotes(ctx context.Context, callRecordID uuid.UUID) ([]callstate.QuoteLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT part_number, unit_price_cents, availability, lead_time_days, notes
		FROM call_quotes
		WHERE call_record_id = $1
		ORDER BY created_at`,
		callRecordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query call quotes: %w", err)
	}
	defer rows.Close()

	var quotes []callstate.QuoteLine
	for rows.Next() {
		var q callstate.QuoteLine
		if err := rows.Scan(&q.PartNumber, &q.PriceCents, &q.Availability, &q.LeadTimeDays, &q.Notes); err != nil {
			return nil, fmt.Errorf("scan call quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func availabilityOrDefault(availability string) string {
	if availability == "" {
		return "available"
	}
	return availability
}
