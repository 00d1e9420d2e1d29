// Package credentials resolves voice-provider credentials per organization:
// decrypted bring-your-own-key material when configured, platform defaults
// otherwise.
package credentials

import (
	"context"
	"errors"

	"partsiq_backend/platform/apperr"
	"partsiq_backend/platform/logger"
	"partsiq_backend/platform/secrets"

	"github.com/google/uuid"
)

// ProviderVapi is the only voice provider currently wired.
const ProviderVapi = "vapi"

// ErrNotConfigured is returned by repositories when an organization has no
// credential row for the provider.
var ErrNotConfigured = errors.New("voice credentials not configured")

// Credentials is the resolved material for one outbound call.
type Credentials struct {
	APIKey        string
	PhoneNumberID string
	AssistantID   string
	// BYOK marks organization-supplied keys, for billing attribution.
	BYOK bool
}

// Record is the stored credential row.
type Record struct {
	OrganizationID  uuid.UUID
	Provider        string
	BYOKEnabled     bool
	APIKeyEncrypted string
	PhoneNumberID   string
	AssistantID     string
}

// Repository loads stored credential rows.
type Repository interface {
	Get(ctx context.Context, orgID uuid.UUID, provider string) (*Record, error)
}

// Provider resolves credentials for an organization and provider.
type Provider interface {
	Resolve(ctx context.Context, orgID uuid.UUID, provider string) (Credentials, error)
}

// Resolver implements the decrypt-or-fallback policy. A decryption failure
// falls back to platform defaults rather than failing the call.
type Resolver struct {
	repo     Repository
	box      *secrets.Keybox
	platform Credentials
	log      *logger.Logger
}

// NewResolver creates a resolver with the platform-default credentials as
// the fallback. An unusable encryption key disables BYOK decryption but does
// not block resolution: affected organizations ride on platform keys.
func NewResolver(repo Repository, encryptionKey []byte, platform Credentials, log *logger.Logger) *Resolver {
	box, err := secrets.NewKeybox(encryptionKey)
	if err != nil {
		log.Error("credential encryption key unusable, BYOK decryption disabled", "error", err)
		box = nil
	}
	return &Resolver{
		repo:     repo,
		box:      box,
		platform: platform,
		log:      log,
	}
}

// Resolve returns usable credentials for the organization, or a
// non-retryable error when neither stored nor platform keys exist.
func (r *Resolver) Resolve(ctx context.Context, orgID uuid.UUID, provider string) (Credentials, error) {
	record, err := r.repo.Get(ctx, orgID, provider)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		r.log.Error("credential lookup failed, using platform keys",
			"organization_id", orgID, "provider", provider, "error", err)
		record = nil
	}

	if record != nil && record.BYOKEnabled && record.APIKeyEncrypted != "" && r.box != nil {
		apiKey, err := r.box.Open(record.APIKeyEncrypted)
		if err != nil {
			r.log.Error("credential decryption failed, falling back to platform keys",
				"organization_id", orgID, "provider", provider, "error", err)
		} else {
			creds := Credentials{
				APIKey:        apiKey,
				PhoneNumberID: record.PhoneNumberID,
				AssistantID:   record.AssistantID,
				BYOK:          true,
			}
			if creds.PhoneNumberID == "" {
				creds.PhoneNumberID = r.platform.PhoneNumberID
			}
			return creds, nil
		}
	}

	creds := r.platform
	// A non-BYOK row may still pin an assistant template for the org.
	if record != nil {
		if record.AssistantID != "" {
			creds.AssistantID = record.AssistantID
		}
		if record.PhoneNumberID != "" {
			creds.PhoneNumberID = record.PhoneNumberID
		}
	}

	if creds.APIKey == "" {
		return Credentials{}, apperr.Internal("no usable voice provider credentials")
	}
	return creds, nil
}
