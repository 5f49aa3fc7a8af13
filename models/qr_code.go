// Package models contains the database models for the QR code management core.
package models

import (
	"time"

	"github.com/amirphl/Kusanagi/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// QRCode is the durable identity record for one logical QR code.
// Slug is the public, mutable short identifier; ID is the immutable
// surrogate key that owns all on-disk artifact paths, so slug edits
// never require file moves.
type QRCode struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Slug           string         `gorm:"size:33;not null;uniqueIndex:uk_qr_codes_slug" json:"slug"`
	DestinationURL string         `gorm:"type:text;not null" json:"destination_url"`
	Title          *string        `gorm:"size:255" json:"title,omitempty"`
	Description    *string        `gorm:"type:text" json:"description,omitempty"`
	Tags           pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	ClickCount     uint64         `gorm:"not null;default:0" json:"click_count"`

	// FavoriteVersionID points at the single version with is_favorite = true.
	// Null only while the code has no versions yet.
	FavoriteVersionID *uint `gorm:"index:idx_qr_codes_favorite_version_id" json:"favorite_version_id,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_qr_codes_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Versions []QRVersion `gorm:"foreignKey:QRCodeID" json:"versions,omitempty"`
}

// TableName returns the table name for QRCode
func (QRCode) TableName() string { return "qr_codes" }

// BeforeCreate is called before creating a new record
func (q *QRCode) BeforeCreate(tx *gorm.DB) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = utils.UTCNow()
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = q.CreatedAt
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (q *QRCode) BeforeUpdate(tx *gorm.DB) error {
	q.UpdatedAt = utils.UTCNow()
	return nil
}

// QRCodeFilter represents filter criteria for QR codes
type QRCodeFilter struct {
	ID            *uint      `json:"id,omitempty"`
	Slug          *string    `json:"slug,omitempty"`
	Tag           *string    `json:"tag,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
