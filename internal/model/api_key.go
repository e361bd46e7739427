package model

import "time"

// APIKey is a user-issued key for programmatic access. Only the hash is stored.
type APIKey struct {
	ID         string     `db:"id"           json:"id"`
	UserID     string     `db:"user_id"      json:"-"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	Prefix     string     `db:"prefix"       json:"prefix"`
	RevokedAt  *time.Time `db:"revoked_at"   json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
}

func (k APIKey) Active() bool { return k.RevokedAt == nil }
