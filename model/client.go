package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Client is a customer who receives invoices.
type Client struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	OwnerID   uint   `gorm:"not null;index"`
	Name      string `gorm:"not null" validate:"required,max=200"`
	Email     string `gorm:"not null" validate:"required,email"`
	Phone     string `validate:"max=50"`
	Address   string
	Company   string `validate:"max=200"`
	Notes     string
}

func (c *Client) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = NormalizeEmail(c.Email)
}

// CreateClient stores a new client for c.OwnerID.
func (s *Store) CreateClient(ctx context.Context, c *Client) error {
	c.ID = 0
	c.normalize()
	if c.OwnerID == 0 {
		return invalid("owner_id", "is required")
	}
	if err := ValidateStruct(c); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// LoadClient returns the client with the given id owned by ownerID.
func (s *Store) LoadClient(ctx context.Context, id, ownerID uint) (*Client, error) {
	var c Client
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&c).Error
	if err != nil {
		return nil, translate(err, "load client %d", id)
	}
	return &c, nil
}

// ListClients returns all clients of ownerID ordered by name.
func (s *Store) ListClients(ctx context.Context, ownerID uint) ([]Client, error) {
	var clients []Client
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name asc, id asc").
		Find(&clients).Error
	return clients, err
}

// ClientNamesByIDs maps client ids to names for the given owner.
func (s *Store) ClientNamesByIDs(ctx context.Context, ownerID uint, ids []uint) (map[uint]string, error) {
	if len(ids) == 0 {
		return map[uint]string{}, nil
	}
	type row struct {
		ID   uint
		Name string
	}
	var rs []row
	if err := s.db.WithContext(ctx).
		Model(&Client{}).
		Select("id, name").
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Scan(&rs).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(rs))
	for _, r := range rs {
		out[r.ID] = r.Name
	}
	return out, nil
}

// UpdateClient overwrites the contact fields of an existing client. Identity
// and owner never change.
func (s *Store) UpdateClient(ctx context.Context, c *Client) error {
	c.normalize()
	if err := ValidateStruct(c); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&Client{}).
		Where("id = ? AND owner_id = ?", c.ID, c.OwnerID).
		Select("name", "email", "phone", "address", "company", "notes", "updated_at").
		Updates(c)
	if res.Error != nil {
		return fmt.Errorf("update client %d: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update client %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// DeleteClient removes a client. Clients still referenced by invoices or
// recurring templates are kept and ErrClientInUse is returned.
func (s *Store) DeleteClient(ctx context.Context, id, ownerID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Client
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&c).Error; err != nil {
			return translate(err, "delete client %d", id)
		}
		var refs int64
		if err := tx.Model(&Invoice{}).Where("client_id = ? AND owner_id = ?", id, ownerID).Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Model(&RecurringTemplate{}).Where("client_id = ? AND owner_id = ?", id, ownerID).Count(&refs).Error; err != nil {
				return err
			}
		}
		if refs > 0 {
			return fmt.Errorf("delete client %d: %w", id, ErrClientInUse)
		}
		return tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&Client{}).Error
	})
}

// clientBelongsTo fails with a validation error when clientID is not a client
// of ownerID.
func clientBelongsTo(tx *gorm.DB, clientID, ownerID uint) error {
	if clientID == 0 {
		return invalid("client_id", "is required")
	}
	var n int64
	if err := tx.Model(&Client{}).Where("id = ? AND owner_id = ?", clientID, ownerID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return invalid("client_id", "does not reference a known client")
	}
	return nil
}
