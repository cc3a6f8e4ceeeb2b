package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"llm-gateway/internal/domain/credential"
	"llm-gateway/internal/utils/crypto"
	"llm-gateway/internal/utils/platformerrors"
)

// sharedOwner is the reserved row owner for process-wide credentials. The
// NUL byte keeps it out of the real user id space.
const sharedOwner = "\x00shared"

// sharedMarker is the reserved provider id for the per-user "resolve
// everything through shared credentials" flag.
const sharedMarker = "\x00all"

// credentialRow is the persisted form of one (user, provider) record. API
// keys are encrypted at rest.
type credentialRow struct {
	UserID         string    `gorm:"column:user_id;primaryKey"`
	ProviderID     string    `gorm:"column:provider_id;primaryKey"`
	APIKeyEnc      string    `gorm:"column:api_key_enc"`
	BaseURL        string    `gorm:"column:base_url"`
	PreferredModel string    `gorm:"column:preferred_model"`
	UseShared      bool      `gorm:"column:use_shared;not null;default:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (credentialRow) TableName() string {
	return "credentials"
}

// CredentialStore implements credential.Store on Postgres with API keys
// encrypted under a process secret. Records flagged UseShared are resolved
// against the reserved shared rows on read, the same substitution the
// in-memory store performs.
type CredentialStore struct {
	db     *gorm.DB
	secret string
}

func NewCredentialStore(db *gorm.DB, secret string) *CredentialStore {
	return &CredentialStore{db: db, secret: secret}
}

// Migrate creates the credentials table.
func (s *CredentialStore) Migrate() error {
	return s.db.AutoMigrate(&credentialRow{})
}

// Get returns every provider record the user can access, with the UseShared
// substitution applied.
func (s *CredentialStore) Get(ctx context.Context, userID string) (map[string]credential.Record, error) {
	var rows []credentialRow
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", []string{userID, sharedOwner}).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "credential read failed")
	}

	shared := make(map[string]credential.Record)
	own := make(map[string]credentialRow)
	sharedUser := false
	for _, row := range rows {
		if row.UserID == sharedOwner {
			rec, err := s.toRecord(ctx, row)
			if err != nil {
				return nil, err
			}
			shared[row.ProviderID] = rec
			continue
		}
		if row.ProviderID == sharedMarker {
			sharedUser = row.UseShared
			continue
		}
		own[row.ProviderID] = row
	}

	if sharedUser {
		return shared, nil
	}

	out := make(map[string]credential.Record, len(own))
	for providerID, row := range own {
		rec, err := s.toRecord(ctx, row)
		if err != nil {
			return nil, err
		}
		if rec.UseShared {
			if sub, ok := shared[providerID]; ok {
				// Preferred model stays the user's own choice.
				sub.PreferredModel = rec.PreferredModel
				out[providerID] = sub
				continue
			}
		}
		out[providerID] = rec
	}
	return out, nil
}

// Set installs or replaces the record for (userID, providerID).
func (s *CredentialStore) Set(ctx context.Context, userID, providerID string, rec credential.Record) error {
	row := credentialRow{
		UserID:         userID,
		ProviderID:     providerID,
		BaseURL:        rec.BaseURL,
		PreferredModel: rec.PreferredModel,
		UseShared:      rec.UseShared,
	}
	if rec.APIKey != "" {
		enc, err := crypto.EncryptString(s.secret, rec.APIKey)
		if err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "credential encryption failed")
		}
		row.APIKeyEnc = enc
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "credential write failed")
	}
	return nil
}

// SetShared installs the process-wide record for a provider.
func (s *CredentialStore) SetShared(ctx context.Context, providerID string, rec credential.Record) error {
	rec.UseShared = false
	return s.Set(ctx, sharedOwner, providerID, rec)
}

// MarkSharedUser flags a user to resolve every provider through the shared
// credential set. Persisted as a marker row so the flag survives restarts.
func (s *CredentialStore) MarkSharedUser(ctx context.Context, userID string) error {
	return s.Set(ctx, userID, sharedMarker, credential.Record{UseShared: true})
}

func (s *CredentialStore) toRecord(ctx context.Context, row credentialRow) (credential.Record, error) {
	rec := credential.Record{
		BaseURL:        row.BaseURL,
		PreferredModel: row.PreferredModel,
		UseShared:      row.UseShared,
	}
	if row.APIKeyEnc != "" {
		plain, err := crypto.DecryptString(s.secret, row.APIKeyEnc)
		if err != nil {
			return credential.Record{}, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "credential decryption failed")
		}
		rec.APIKey = plain
	}
	return rec, nil
}

var _ credential.Store = (*CredentialStore)(nil)
