package model

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateAPIToken creates a token record and returns the plaintext token. The
// plaintext is never stored and cannot be recovered later.
func (s *Store) CreateAPIToken(ctx context.Context, ownerID uint, userID *uint, name, scope string, expiresAt *time.Time) (string, *APIToken, error) {
	secret, err := newTokenSecret()
	if err != nil {
		return "", nil, err
	}
	rec := secret.record(ownerID)
	rec.UserID = userID
	rec.Name = name
	rec.Scope = scope
	rec.ExpiresAt = expiresAt
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", nil, fmt.Errorf("create api token: %w", err)
	}
	return secret.plain, rec, nil
}

// IssueLoginToken authenticates a user by password and hands out a token
// valid for ttl.
func (s *Store) IssueLoginToken(ctx context.Context, email, password string, ttl time.Duration) (string, *APIToken, error) {
	u, err := s.AuthenticateUser(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	_ = s.TouchLastLogin(ctx, u)
	exp := time.Now().Add(ttl)
	uid := u.ID
	return s.CreateAPIToken(ctx, u.OwnerID, &uid, "login", "", &exp)
}

// ValidateAPIToken looks the token up by prefix, compares the salted hash in
// constant time and checks state and expiry. The last-used timestamp is
// updated on success.
func (s *Store) ValidateAPIToken(ctx context.Context, raw string) (*APIToken, error) {
	prefix, ok := lookupPrefix(raw)
	if !ok {
		return nil, ErrTokenInvalid
	}

	var rec APIToken
	if err := s.db.WithContext(ctx).Where("token_prefix = ?", prefix).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if !rec.matches(raw) {
		return nil, ErrTokenInvalid
	}

	now := time.Now()
	switch {
	case rec.Disabled:
		return nil, ErrTokenDisabled
	case rec.Expired(now):
		return nil, ErrTokenExpired
	}

	_ = s.db.WithContext(ctx).Model(&APIToken{}).Where("id = ?", rec.ID).Update("last_used_at", now).Error
	rec.LastUsedAt = &now
	return &rec, nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RevokeAPIToken disables a token of ownerID.
func (s *Store) RevokeAPIToken(ctx context.Context, ownerID, tokenID uint) error {
	res := s.db.WithContext(ctx).Model(&APIToken{}).
		Where("id = ? AND owner_id = ?", tokenID, ownerID).
		Update("disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("revoke token %d: %w", tokenID, ErrNotFound)
	}
	return nil
}

// ListAPITokensByOwner returns a page of tokens, newest first, and the cursor
// of the next page.
func (s *Store) ListAPITokensByOwner(ctx context.Context, ownerID uint, limit int, cursor string) ([]APIToken, string, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at desc, id desc")
	return findPage[APIToken](q, limit, cursor)
}
