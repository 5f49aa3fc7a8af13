// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/Kusanagi/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// QRCodeRepository defines operations for QR code identity records
type QRCodeRepository interface {
	Repository[models.QRCode, models.QRCodeFilter]
	ByIDForUpdate(ctx context.Context, id uint) (*models.QRCode, error)
	BySlug(ctx context.Context, slug string) (*models.QRCode, error)
	SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error)
	IncrementClicks(ctx context.Context, id uint) error
	ResetClicks(ctx context.Context, id uint) error
	UpdateSlug(ctx context.Context, id uint, slug string) error
	UpdateFields(ctx context.Context, id uint, updates map[string]any) error
	SetFavoriteVersion(ctx context.Context, id uint, versionID *uint) error
	Delete(ctx context.Context, id uint) error
}

// QRVersionRepository defines operations for styled QR renders
type QRVersionRepository interface {
	Repository[models.QRVersion, models.QRVersionFilter]
	ListByCode(ctx context.Context, qrCodeID uint) ([]*models.QRVersion, error)
	CountByCode(ctx context.Context, qrCodeID uint) (int64, error)
	FavoriteByCode(ctx context.Context, qrCodeID uint) (*models.QRVersion, error)
	ClearFavorites(ctx context.Context, qrCodeID uint) error
	MarkFavorite(ctx context.Context, id uint) error
	UpdateFields(ctx context.Context, id uint, updates map[string]any) error
	Delete(ctx context.Context, id uint) error
	DeleteByCode(ctx context.Context, qrCodeID uint) error
}
