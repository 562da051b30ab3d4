package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey stores the hashed live credential of a merchant. A merchant has at
// most one; provisioning never rotates it.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	MerchantID string         `gorm:"column:merchant_id;type:text;not null;uniqueIndex:ux_api_keys_merchant"`
	KeyID      string         `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Scopes     pq.StringArray `gorm:"type:text;not null"`
	KeyHash    string         `gorm:"column:key_hash;type:text;not null"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// HashSecret is the stored form of a plaintext key.
func HashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether plain hashes to the stored key, in constant time.
func (k *APIKey) Matches(plain string) bool {
	return subtle.ConstantTimeCompare([]byte(k.KeyHash), []byte(HashSecret(plain))) == 1
}
