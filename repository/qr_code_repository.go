package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique constraint violations
const pgUniqueViolation = "23505"

// ErrDuplicateSlug is returned when an insert or slug update hits the
// uniqueness constraint on qr_codes.slug. The constraint lives in the
// database; application code never does check-then-insert.
var ErrDuplicateSlug = errors.New("slug already exists")

// IsDuplicateSlug reports whether err is a slug uniqueness violation
func IsDuplicateSlug(err error) bool {
	if errors.Is(err, ErrDuplicateSlug) {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

// QRCodeRepositoryImpl implements QRCodeRepository
type QRCodeRepositoryImpl struct {
	*BaseRepository[models.QRCode, models.QRCodeFilter]
}

func NewQRCodeRepository(db *gorm.DB) QRCodeRepository {
	return &QRCodeRepositoryImpl{BaseRepository: NewBaseRepository[models.QRCode, models.QRCodeFilter](db)}
}

func (r *QRCodeRepositoryImpl) applyFilter(db *gorm.DB, f models.QRCodeFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Slug != nil {
		db = db.Where("slug = ?", *f.Slug)
	}
	if f.Tag != nil {
		db = db.Where("? = ANY(tags)", *f.Tag)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *QRCodeRepositoryImpl) ByFilter(ctx context.Context, filter models.QRCodeFilter, orderBy string, limit, offset int) ([]*models.QRCode, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.QRCode{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.QRCode
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *QRCodeRepositoryImpl) Count(ctx context.Context, filter models.QRCodeFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.QRCode{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *QRCodeRepositoryImpl) Exists(ctx context.Context, filter models.QRCodeFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByIDForUpdate loads a code row under a FOR UPDATE lock, serializing
// concurrent version mutations on the same code. Only meaningful inside
// a transaction.
func (r *QRCodeRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.QRCode, error) {
	db := r.getDB(ctx)
	var row models.QRCode
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock code %d: %w", id, err)
	}
	return &row, nil
}

// BySlug looks up a QR code by its exact, case-sensitive slug
func (r *QRCodeRepositoryImpl) BySlug(ctx context.Context, slug string) (*models.QRCode, error) {
	db := r.getDB(ctx)
	var row models.QRCode
	if err := db.Where("slug = ?", slug).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// SlugExists checks slug uniqueness; excludeID (when non-zero) treats that
// record's own slug as a non-conflict during edits.
func (r *QRCodeRepositoryImpl) SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.QRCode{}).Where("slug = ?", slug)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save inserts a new QR code, mapping unique violations to ErrDuplicateSlug
func (r *QRCodeRepositoryImpl) Save(ctx context.Context, entity *models.QRCode) error {
	err := r.BaseRepository.Save(ctx, entity)
	if err != nil && IsDuplicateSlug(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateSlug, err)
	}
	return err
}

// IncrementClicks bumps click_count by one inside the database. The
// expression is commutative, so concurrent scans never lose counts.
func (r *QRCodeRepositoryImpl) IncrementClicks(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	res := db.Model(&models.QRCode{}).Where("id = ?", id).
		UpdateColumn("click_count", gorm.Expr("click_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to increment clicks for code %d: %w", id, res.Error)
	}
	return nil
}

func (r *QRCodeRepositoryImpl) ResetClicks(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	res := db.Model(&models.QRCode{}).Where("id = ?", id).
		Updates(map[string]any{"click_count": 0, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return fmt.Errorf("failed to reset clicks for code %d: %w", id, res.Error)
	}
	return nil
}

// UpdateSlug changes only the slug, mapping unique violations to ErrDuplicateSlug
func (r *QRCodeRepositoryImpl) UpdateSlug(ctx context.Context, id uint, slug string) error {
	db := r.getDB(ctx)
	res := db.Model(&models.QRCode{}).Where("id = ?", id).
		Updates(map[string]any{"slug": slug, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		if IsDuplicateSlug(res.Error) {
			return fmt.Errorf("%w: %v", ErrDuplicateSlug, res.Error)
		}
		return fmt.Errorf("failed to update slug for code %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *QRCodeRepositoryImpl) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = utils.UTCNow()
	db := r.getDB(ctx)
	res := db.Model(&models.QRCode{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update code %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetFavoriteVersion updates the favorite pointer; nil clears it
func (r *QRCodeRepositoryImpl) SetFavoriteVersion(ctx context.Context, id uint, versionID *uint) error {
	db := r.getDB(ctx)
	res := db.Model(&models.QRCode{}).Where("id = ?", id).
		Updates(map[string]any{"favorite_version_id": versionID, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return fmt.Errorf("failed to set favorite version for code %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *QRCodeRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	if err := db.Delete(&models.QRCode{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete code %d: %w", id, err)
	}
	return nil
}
