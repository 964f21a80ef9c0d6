package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// NormalizeEmail lowercases and trims the email string
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var (
	ErrInvalidPassword = fmt.Errorf("invalid password")
	ErrTokenExpired    = fmt.Errorf("token expired")
	ErrTokenInvalid    = fmt.Errorf("token invalid")
	ErrTokenNotFound   = fmt.Errorf("token not found")
	ErrTokenDisabled   = fmt.Errorf("token disabled")
	ErrUnauthorized    = fmt.Errorf("unauthorized")
)

// DefaultInvoiceNumberTemplate is used when a user has not configured one.
const DefaultInvoiceNumberTemplate = "INV-%YYYY%-%04C%"

// User is an account holder. OwnerID is the tenant the user acts for; the
// first user of a tenant owns it.
type User struct {
	gorm.Model
	Email                 string `gorm:"uniqueIndex;not null" validate:"required,email"` // always stored lowercase
	FullName              string
	BusinessName          string
	Password              string `gorm:"not null"`
	InvoiceNumberTemplate string
	LastLoginAt           *time.Time
	OwnerID               uint `gorm:"index"`
}

// Normalize email before saving
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// SenderName is the name shown as the sender of outgoing invoices.
func (u *User) SenderName() string {
	if u.BusinessName != "" {
		return u.BusinessName
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// NumberTemplate returns the configured invoice number template.
func (u *User) NumberTemplate() string {
	if strings.TrimSpace(u.InvoiceNumberTemplate) == "" {
		return DefaultInvoiceNumberTemplate
	}
	return u.InvoiceNumberTemplate
}

// CreateUser stores u with a bcrypt hash of password. A user without an
// OwnerID becomes the owner of a new tenant.
func (s *Store) CreateUser(ctx context.Context, u *User, password string) error {
	if err := ValidateStruct(u); err != nil {
		return err
	}
	if len(password) < 8 {
		return invalid("password", "must be at least 8 characters")
	}
	if err := s.SetPassword(u, password); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			if isDuplicate(err) {
				return invalid("email", "is already registered")
			}
			return err
		}
		if u.OwnerID == 0 {
			u.OwnerID = u.ID
			return tx.Model(u).Update("owner_id", u.OwnerID).Error
		}
		return nil
	})
}

func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*User, error) {
	user, err := s.GetUserByEMail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// same answer as a wrong password
			return nil, ErrInvalidPassword
		}
		return nil, err
	}
	if !s.CheckPassword(user, password) {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "load user %d", id)
	}
	return &user, nil
}

// OwnerUser returns the user who owns the tenant ownerID.
func (s *Store) OwnerUser(ctx context.Context, ownerID uint) (*User, error) {
	return s.GetUserByID(ctx, ownerID)
}

func (s *Store) GetUserByEMail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	var user User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err, "load user %s", email)
	}
	return &user, nil
}

func (s *Store) SetPassword(u *User, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (s *Store) CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

func (s *Store) TouchLastLogin(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.LastLoginAt = &now
	return s.db.WithContext(ctx).Model(u).Update("last_login_at", now).Error
}

// UpdateUserProfile changes the display and numbering settings of a user.
func (s *Store) UpdateUserProfile(ctx context.Context, u *User) error {
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", u.ID).
		Select("full_name", "business_name", "invoice_number_template").
		Updates(u)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update user %d: %w", u.ID, ErrNotFound)
	}
	return nil
}
