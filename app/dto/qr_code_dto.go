package dto

// CreateQRCodeRequest creates a new QR code identity
type CreateQRCodeRequest struct {
	Slug           string   `json:"slug" validate:"required,min=1,max=33"`
	DestinationURL string   `json:"destination_url" validate:"required,url"`
	Title          *string  `json:"title,omitempty" validate:"omitempty,max=255"`
	Description    *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Tags           []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// UpdateQRCodeRequest patches mutable fields; nil fields are left untouched
type UpdateQRCodeRequest struct {
	DestinationURL *string  `json:"destination_url,omitempty" validate:"omitempty,url"`
	Title          *string  `json:"title,omitempty" validate:"omitempty,max=255"`
	Description    *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Tags           []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// RenameSlugRequest changes the public slug of an existing code.
// Confirmed must be true when the code already has recorded clicks.
type RenameSlugRequest struct {
	NewSlug   string `json:"new_slug" validate:"required,min=1,max=33"`
	Confirmed bool   `json:"confirmed"`
}

// QRCodeResponse is the public projection of one QR code
type QRCodeResponse struct {
	ID                uint     `json:"id"`
	Slug              string   `json:"slug"`
	PublicURL         string   `json:"public_url"`
	DestinationURL    string   `json:"destination_url"`
	Title             *string  `json:"title,omitempty"`
	Description       *string  `json:"description,omitempty"`
	Tags              []string `json:"tags"`
	ClickCount        uint64   `json:"click_count"`
	FavoriteVersionID *uint    `json:"favorite_version_id,omitempty"`
	VersionCount      int64    `json:"version_count"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// QRCodeListRequest filters and paginates the code listing
type QRCodeListRequest struct {
	Tag      *string `query:"tag" json:"tag,omitempty"`
	Page     int     `query:"page" json:"page"`
	PageSize int     `query:"page_size" json:"page_size"`
}

// QRCodeListResponse is one page of QR codes
type QRCodeListResponse struct {
	Items      []QRCodeResponse   `json:"items"`
	Pagination PaginationResponse `json:"pagination"`
}

// RenameSlugResponse reports the outcome of a completed rename
type RenameSlugResponse struct {
	ID        uint   `json:"id"`
	OldSlug   string `json:"old_slug"`
	Slug      string `json:"slug"`
	PublicURL string `json:"public_url"`
}

// CheckSlugRequest probes a candidate slug before committing to it
type CheckSlugRequest struct {
	Slug      string `query:"slug" json:"slug" validate:"required,min=1,max=33"`
	ExcludeID uint   `query:"exclude_id" json:"exclude_id,omitempty"`
}

// CheckSlugResponse reports validity and availability of a candidate slug.
// Suggestions is populated only when the slug is valid but taken.
type CheckSlugResponse struct {
	Slug        string   `json:"slug"`
	Valid       bool     `json:"valid"`
	Available   bool     `json:"available"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
