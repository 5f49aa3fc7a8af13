package dto

// CreateVersionRequest adds a styled render to a QR code. StyleConfig wins
// over CloneFromVersionID when both are present; with neither, the version
// starts from the default style.
type CreateVersionRequest struct {
	Name               *string        `json:"name,omitempty" validate:"omitempty,max=255"`
	StyleConfig        map[string]any `json:"style_config,omitempty"`
	CloneFromVersionID *uint          `json:"clone_from_version_id,omitempty"`
}

// UpdateVersionRequest patches a version; nil fields are left untouched
type UpdateVersionRequest struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,max=255"`
	StyleConfig map[string]any `json:"style_config,omitempty"`
}

// QRVersionResponse is the public projection of one version. Storage paths
// stay internal; clients fetch artifacts through the image and preview URLs.
type QRVersionResponse struct {
	ID          uint           `json:"id"`
	QRCodeID    uint           `json:"qr_code_id"`
	Name        string         `json:"name"`
	StyleConfig map[string]any `json:"style_config"`
	IsFavorite  bool           `json:"is_favorite"`
	HasImage    bool           `json:"has_image"`
	HasLogo     bool           `json:"has_logo"`
	ImageURL    string         `json:"image_url,omitempty"`
	PreviewURL  string         `json:"preview_url,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// QRVersionListResponse lists every version of one code in creation order
type QRVersionListResponse struct {
	QRCodeID uint                `json:"qr_code_id"`
	Items    []QRVersionResponse `json:"items"`
}
