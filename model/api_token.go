package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Every plaintext token starts with tokenMarker. The first tokenPrefixLen
// characters are stored in clear for the lookup.
const (
	tokenMarker    = "inv_"
	tokenPrefixLen = 12
)

// APIToken authenticates API calls for one owner. Only a salted hash of the
// token is stored.
type APIToken struct {
	gorm.Model
	OwnerID     uint   `gorm:"index;not null"`
	UserID      *uint  `gorm:"index"`
	TokenPrefix string `gorm:"size:16;index;not null"`
	TokenHash   string `gorm:"size:64;uniqueIndex;not null"`
	Salt        string `gorm:"size:64;not null"`

	Name       string `gorm:"size:100"`
	Scope      string `gorm:"size:200"`
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	Disabled   bool `gorm:"not null;default:false"`
}

func (APIToken) TableName() string { return "api_tokens" }

// Expired reports whether the token has an expiry at or before now.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// matches compares plain against the stored hash in constant time.
func (t *APIToken) matches(plain string) bool {
	salt, err := hex.DecodeString(t.Salt)
	if err != nil {
		return false
	}
	return constantTimeEqual(hashToken(salt, plain), t.TokenHash)
}

type tokenSecret struct {
	plain string
	salt  []byte
}

func newTokenSecret() (tokenSecret, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return tokenSecret{}, fmt.Errorf("token entropy: %w", err)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return tokenSecret{}, fmt.Errorf("token salt: %w", err)
	}
	return tokenSecret{
		plain: tokenMarker + base64.RawURLEncoding.EncodeToString(raw[:]),
		salt:  salt,
	}, nil
}

// record fills the stored fields of an APIToken for ownerID.
func (s tokenSecret) record(ownerID uint) *APIToken {
	return &APIToken{
		OwnerID:     ownerID,
		TokenPrefix: s.plain[:tokenPrefixLen],
		TokenHash:   hashToken(s.salt, s.plain),
		Salt:        hex.EncodeToString(s.salt),
	}
}

// lookupPrefix returns the stored prefix of a presented token, or false if
// raw cannot be one of ours.
func lookupPrefix(raw string) (string, bool) {
	if !strings.HasPrefix(raw, tokenMarker) || len(raw) < tokenPrefixLen+8 {
		return "", false
	}
	return raw[:tokenPrefixLen], true
}

func hashToken(salt []byte, plain string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(plain))
	return hex.EncodeToString(h.Sum(nil))
}
