package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/edvin/safehouse/internal/model"
	"github.com/edvin/safehouse/internal/platform"
)

const apiKeyPrefix = "shk_"

// APIKeyService manages API keys in the core database. Only the SHA-256 of a
// key is stored.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// HashAPIKey returns the hex SHA-256 stored in api_keys.key_hash.
func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// Create generates a key for tenants and returns it with the raw key string,
// which is never stored and must be shown to the user exactly once.
func (s *APIKeyService) Create(ctx context.Context, name string, tenants []string) (*model.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", validationErrorf("api key name is required")
	}
	if len(tenants) == 0 {
		return nil, "", validationErrorf("api key needs at least one tenant")
	}

	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := apiKeyPrefix + hex.EncodeToString(rawBytes)

	key := &model.APIKey{
		ID:        platform.NewID(),
		Name:      name,
		KeyPrefix: rawKey[:len(apiKeyPrefix)+8],
		Tenants:   tenants,
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, tenants, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING created_at`,
		key.ID, key.Name, HashAPIKey(rawKey), key.KeyPrefix, key.Tenants,
	).Scan(&key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key: %w", err)
	}
	return key, rawKey, nil
}

// List returns all keys, newest first, including revoked ones.
func (s *APIKeyService) List(ctx context.Context) ([]model.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, key_prefix, tenants, created_at, revoked_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.Tenants, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes an API key by setting revoked_at.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL", id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundErrorf("api key %s", id)
	}
	return nil
}
