package model

import "time"

// APIKey authenticates callers of the tenant API. Tenants lists the tenant ids
// the key may act on; "*" grants every tenant.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyPrefix string     `json:"key_prefix,omitempty"`
	Tenants   []string   `json:"tenants"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
