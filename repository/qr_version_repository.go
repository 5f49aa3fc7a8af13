package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"gorm.io/gorm"
)

// QRVersionRepositoryImpl implements QRVersionRepository
type QRVersionRepositoryImpl struct {
	*BaseRepository[models.QRVersion, models.QRVersionFilter]
}

func NewQRVersionRepository(db *gorm.DB) QRVersionRepository {
	return &QRVersionRepositoryImpl{BaseRepository: NewBaseRepository[models.QRVersion, models.QRVersionFilter](db)}
}

func (r *QRVersionRepositoryImpl) applyFilter(db *gorm.DB, f models.QRVersionFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.QRCodeID != nil {
		db = db.Where("qr_code_id = ?", *f.QRCodeID)
	}
	if f.IsFavorite != nil {
		db = db.Where("is_favorite = ?", *f.IsFavorite)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *QRVersionRepositoryImpl) ByFilter(ctx context.Context, filter models.QRVersionFilter, orderBy string, limit, offset int) ([]*models.QRVersion, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.QRVersion{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.QRVersion
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *QRVersionRepositoryImpl) Count(ctx context.Context, filter models.QRVersionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.QRVersion{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *QRVersionRepositoryImpl) Exists(ctx context.Context, filter models.QRVersionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

func (r *QRVersionRepositoryImpl) ListByCode(ctx context.Context, qrCodeID uint) ([]*models.QRVersion, error) {
	return r.ByFilter(ctx, models.QRVersionFilter{QRCodeID: &qrCodeID}, "id ASC", 0, 0)
}

func (r *QRVersionRepositoryImpl) CountByCode(ctx context.Context, qrCodeID uint) (int64, error) {
	return r.Count(ctx, models.QRVersionFilter{QRCodeID: &qrCodeID})
}

// FavoriteByCode returns the single favorite version for a code, or nil
func (r *QRVersionRepositoryImpl) FavoriteByCode(ctx context.Context, qrCodeID uint) (*models.QRVersion, error) {
	db := r.getDB(ctx)
	var row models.QRVersion
	if err := db.Where("qr_code_id = ? AND is_favorite = ?", qrCodeID, true).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ClearFavorites resets is_favorite on every version owned by the code.
// Callers run this inside a transaction together with MarkFavorite so the
// single-favorite invariant is never observable as violated.
func (r *QRVersionRepositoryImpl) ClearFavorites(ctx context.Context, qrCodeID uint) error {
	db := r.getDB(ctx)
	res := db.Model(&models.QRVersion{}).
		Where("qr_code_id = ? AND is_favorite = ?", qrCodeID, true).
		Updates(map[string]any{"is_favorite": false, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return fmt.Errorf("failed to clear favorites for code %d: %w", qrCodeID, res.Error)
	}
	return nil
}

func (r *QRVersionRepositoryImpl) MarkFavorite(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	res := db.Model(&models.QRVersion{}).Where("id = ?", id).
		Updates(map[string]any{"is_favorite": true, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return fmt.Errorf("failed to mark version %d favorite: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *QRVersionRepositoryImpl) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = utils.UTCNow()
	db := r.getDB(ctx)
	res := db.Model(&models.QRVersion{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update version %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *QRVersionRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	if err := db.Delete(&models.QRVersion{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete version %d: %w", id, err)
	}
	return nil
}

func (r *QRVersionRepositoryImpl) DeleteByCode(ctx context.Context, qrCodeID uint) error {
	db := r.getDB(ctx)
	if err := db.Where("qr_code_id = ?", qrCodeID).Delete(&models.QRVersion{}).Error; err != nil {
		return fmt.Errorf("failed to delete versions for code %d: %w", qrCodeID, err)
	}
	return nil
}
