package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/Kusanagi/utils"
	"gorm.io/gorm"
)

// StyleConfig is the opaque render-parameter blob consumed by the external
// QR render engine. The core stores, returns and clones it without
// interpreting any of its keys.
type StyleConfig map[string]any

// Value implements the driver.Valuer interface for database storage
func (s StyleConfig) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (s *StyleConfig) Scan(value any) error {
	if value == nil {
		*s = StyleConfig{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StyleConfig", value)
	}

	return json.Unmarshal(bytes, s)
}

// Clone returns a deep copy safe to hand to a new version
func (s StyleConfig) Clone() StyleConfig {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return StyleConfig{}
	}
	out := StyleConfig{}
	if err := json.Unmarshal(b, &out); err != nil {
		return StyleConfig{}
	}
	return out
}

// QRVersion is one styled rendered image belonging to a QRCode.
// Its immutable ID keys the on-disk image (and optional logo) file,
// decoupling storage from the mutable slug.
type QRVersion struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	QRCodeID    uint        `gorm:"not null;index:idx_qr_versions_qr_code_id" json:"qr_code_id"`
	Name        string      `gorm:"size:255;not null" json:"name"`
	StyleConfig StyleConfig `gorm:"type:jsonb;not null;default:'{}'" json:"style_config"`
	ImagePath   string      `gorm:"type:text;not null;default:''" json:"image_path"`
	LogoPath    *string     `gorm:"type:text" json:"logo_path,omitempty"`
	IsFavorite  bool        `gorm:"not null;default:false;index:idx_qr_versions_is_favorite" json:"is_favorite"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_qr_versions_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	QRCode *QRCode `gorm:"foreignKey:QRCodeID;references:ID" json:"qr_code,omitempty"`
}

// TableName returns the table name for QRVersion
func (QRVersion) TableName() string { return "qr_versions" }

// BeforeCreate is called before creating a new record
func (v *QRVersion) BeforeCreate(tx *gorm.DB) error {
	if v.Name == "" {
		v.Name = utils.DefaultVersionName
	}
	if v.StyleConfig == nil {
		v.StyleConfig = StyleConfig{}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = utils.UTCNow()
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = v.CreatedAt
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (v *QRVersion) BeforeUpdate(tx *gorm.DB) error {
	v.UpdatedAt = utils.UTCNow()
	return nil
}

// QRVersionFilter represents filter criteria for QR versions
type QRVersionFilter struct {
	ID            *uint      `json:"id,omitempty"`
	QRCodeID      *uint      `json:"qr_code_id,omitempty"`
	IsFavorite    *bool      `json:"is_favorite,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
