package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements Repository against Postgres.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository creates a credentials repository.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// Get loads the credential row for an organization and provider.
func (r *PgRepository) Get(ctx context.Context, orgID uuid.UUID, provider string) (*Record, error) {
	rec := &Record{OrganizationID: orgID, Provider: provider}
	var apiKey, phoneNumberID, assistantID *string

	err := r.db.QueryRow(ctx, `
		SELECT byok_enabled, api_key_encrypted, phone_number_id, assistant_id
		FROM organization_voice_credentials
		WHERE organization_id = $1 AND provider = $2`,
		orgID, provider,
	).Scan(&rec.BYOKEnabled, &apiKey, &phoneNumberID, &assistantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("query voice credentials: %w", err)
	}

	if apiKey != nil {
		rec.APIKeyEncrypted = *apiKey
	}
	if phoneNumberID != nil {
		rec.PhoneNumberID = *phoneNumberID
	}
	if assistantID != nil {
		rec.AssistantID = *assistantID
	}
	return rec, nil
}
