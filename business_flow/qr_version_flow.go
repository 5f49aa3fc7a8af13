package businessflow

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"gorm.io/gorm"
)

// QRVersionFlow covers styled renders: creation with style inheritance, the
// single-favorite invariant, guarded deletion and artifact handling.
type QRVersionFlow interface {
	ListVersions(ctx context.Context, codeID uint) (*dto.QRVersionListResponse, error)
	GetVersion(ctx context.Context, id uint) (*dto.QRVersionResponse, error)
	CreateVersion(ctx context.Context, codeID uint, req *dto.CreateVersionRequest) (*dto.QRVersionResponse, error)
	UpdateVersion(ctx context.Context, id uint, req *dto.UpdateVersionRequest) (*dto.QRVersionResponse, error)
	SetFavorite(ctx context.Context, id uint) (*dto.QRVersionResponse, error)
	DeleteVersion(ctx context.Context, id uint, newFavoriteID *uint) error
	UploadImage(ctx context.Context, id uint, r io.Reader) (*dto.QRVersionResponse, error)
	UploadLogo(ctx context.Context, id uint, r io.Reader) (*dto.QRVersionResponse, error)
	GetImage(ctx context.Context, id uint) ([]byte, string, error)
	GetPreview(ctx context.Context, id uint) ([]byte, error)
}

// QRVersionFlowImpl implements QRVersionFlow
type QRVersionFlowImpl struct {
	codeRepo    repository.QRCodeRepository
	versionRepo repository.QRVersionRepository
	store       *ArtifactStore
	db          *gorm.DB
	cfg         *config.QRConfig
}

func NewQRVersionFlow(
	codeRepo repository.QRCodeRepository,
	versionRepo repository.QRVersionRepository,
	store *ArtifactStore,
	db *gorm.DB,
	cfg *config.QRConfig,
) QRVersionFlow {
	return &QRVersionFlowImpl{
		codeRepo:    codeRepo,
		versionRepo: versionRepo,
		store:       store,
		db:          db,
		cfg:         cfg,
	}
}

// defaultStyleConfig is the starting render style for versions created
// without an explicit style or clone source
func defaultStyleConfig() models.StyleConfig {
	return models.StyleConfig{
		"size":             512,
		"margin":           4,
		"foreground":       "#000000",
		"background":       "#FFFFFF",
		"error_correction": "M",
	}
}

func (f *QRVersionFlowImpl) ListVersions(ctx context.Context, codeID uint) (*dto.QRVersionListResponse, error) {
	code, err := f.codeRepo.ByID(ctx, codeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load QR code %d: %w", codeID, err)
	}
	if code == nil {
		return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}

	versions, err := f.versionRepo.ListByCode(ctx, codeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for code %d: %w", codeID, err)
	}
	items := make([]dto.QRVersionResponse, 0, len(versions))
	for _, v := range versions {
		items = append(items, toQRVersionResponse(v))
	}
	return &dto.QRVersionListResponse{QRCodeID: codeID, Items: items}, nil
}

func (f *QRVersionFlowImpl) GetVersion(ctx context.Context, id uint) (*dto.QRVersionResponse, error) {
	version, err := f.mustVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toQRVersionResponse(version)
	return &resp, nil
}

func (f *QRVersionFlowImpl) CreateVersion(ctx context.Context, codeID uint, req *dto.CreateVersionRequest) (*dto.QRVersionResponse, error) {
	version := &models.QRVersion{QRCodeID: codeID}
	if req.Name != nil {
		version.Name = *req.Name
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		// The code row lock serializes concurrent creates, so two requests
		// cannot both pass the cap check or both claim the first-version
		// favorite promotion.
		code, err := f.codeRepo.ByIDForUpdate(txCtx, codeID)
		if err != nil {
			return err
		}
		if code == nil {
			return NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
		}

		count, err := f.versionRepo.CountByCode(txCtx, codeID)
		if err != nil {
			return err
		}
		if count >= int64(f.cfg.MaxVersionsPerCode) {
			return NewBusinessError("VERSION_LIMIT_EXCEEDED",
				fmt.Sprintf("a QR code can have at most %d versions", f.cfg.MaxVersionsPerCode),
				ErrVersionLimitExceeded)
		}

		// Style precedence: explicit payload, then clone source, then defaults
		switch {
		case req.StyleConfig != nil:
			version.StyleConfig = models.StyleConfig(req.StyleConfig).Clone()
		case req.CloneFromVersionID != nil:
			src, err := f.versionRepo.ByID(txCtx, *req.CloneFromVersionID)
			if err != nil {
				return err
			}
			if src == nil {
				return NewBusinessError("VERSION_NOT_FOUND", "clone source version does not exist", ErrVersionNotFound)
			}
			if src.QRCodeID != codeID {
				return NewBusinessError("CLONE_SOURCE_NOT_OWNED",
					"clone source must belong to the same QR code", ErrCloneSourceNotOwned)
			}
			version.StyleConfig = src.StyleConfig.Clone()
		default:
			version.StyleConfig = defaultStyleConfig()
		}

		if err := f.versionRepo.Save(txCtx, version); err != nil {
			return err
		}

		// The first version becomes the favorite in the same transaction,
		// so a code with versions always has exactly one favorite.
		if count == 0 {
			if err := f.versionRepo.MarkFavorite(txCtx, version.ID); err != nil {
				return err
			}
			if err := f.codeRepo.SetFavoriteVersion(txCtx, codeID, &version.ID); err != nil {
				return err
			}
			version.IsFavorite = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Storage directories are keyed by ids allocated above, so they can
	// only be materialized after the insert. Uploads recreate them anyway.
	if err := f.store.EnsureDirs(codeID); err != nil {
		log.Printf("failed to materialize artifact directories for code %d: %v", codeID, err)
	}

	resp := toQRVersionResponse(version)
	return &resp, nil
}

func (f *QRVersionFlowImpl) UpdateVersion(ctx context.Context, id uint, req *dto.UpdateVersionRequest) (*dto.QRVersionResponse, error) {
	if _, err := f.mustVersion(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.StyleConfig != nil {
		updates["style_config"] = models.StyleConfig(req.StyleConfig)
	}
	if len(updates) > 0 {
		if err := f.versionRepo.UpdateFields(ctx, id, updates); err != nil {
			return nil, err
		}
	}
	return f.GetVersion(ctx, id)
}

// SetFavorite promotes one version. Clearing the old favorite, marking the
// new one and moving the code's pointer happen in a single transaction; the
// operation is idempotent for the current favorite.
func (f *QRVersionFlowImpl) SetFavorite(ctx context.Context, id uint) (*dto.QRVersionResponse, error) {
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		version, err := f.mustVersion(txCtx, id)
		if err != nil {
			return err
		}
		// Serialize against concurrent swaps and deletes on the same code
		code, err := f.codeRepo.ByIDForUpdate(txCtx, version.QRCodeID)
		if err != nil {
			return err
		}
		if code == nil {
			return NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
		}

		if err := f.versionRepo.ClearFavorites(txCtx, version.QRCodeID); err != nil {
			return err
		}
		if err := f.versionRepo.MarkFavorite(txCtx, id); err != nil {
			return err
		}
		return f.codeRepo.SetFavoriteVersion(txCtx, version.QRCodeID, &id)
	})
	if err != nil {
		return nil, err
	}
	return f.GetVersion(ctx, id)
}

func (f *QRVersionFlowImpl) DeleteVersion(ctx context.Context, id uint, newFavoriteID *uint) error {
	var imagePath, logoPath string

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		version, err := f.mustVersion(txCtx, id)
		if err != nil {
			return err
		}

		// Every guard below runs under the code row lock, so two concurrent
		// deletes on a two-version code cannot both pass the count check,
		// and a replacement favorite cannot be deleted out from under a
		// promotion in flight.
		code, err := f.codeRepo.ByIDForUpdate(txCtx, version.QRCodeID)
		if err != nil {
			return err
		}
		if code == nil {
			return NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
		}

		// The target may have been deleted while waiting on the lock
		version, err = f.mustVersion(txCtx, id)
		if err != nil {
			return err
		}

		count, err := f.versionRepo.CountByCode(txCtx, version.QRCodeID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return NewBusinessError("LAST_VERSION", "the only remaining version cannot be deleted", ErrLastVersion)
		}

		var newFavorite *models.QRVersion
		if version.IsFavorite {
			if newFavoriteID == nil {
				siblings, err := f.versionRepo.ListByCode(txCtx, version.QRCodeID)
				if err != nil {
					return err
				}
				candidates := make([]VersionCandidate, 0, len(siblings)-1)
				for _, sibling := range siblings {
					if sibling.ID != id {
						candidates = append(candidates, VersionCandidate{ID: sibling.ID, Name: sibling.Name})
					}
				}
				return &NewFavoriteRequiredError{Candidates: candidates}
			}

			newFavorite, err = f.versionRepo.ByID(txCtx, *newFavoriteID)
			if err != nil {
				return err
			}
			if newFavorite == nil || newFavorite.QRCodeID != version.QRCodeID || newFavorite.ID == id {
				return NewBusinessError("FAVORITE_NOT_OWNED",
					"replacement favorite must be a different version of the same QR code", ErrFavoriteNotOwned)
			}
		}

		if newFavorite != nil {
			if err := f.versionRepo.ClearFavorites(txCtx, version.QRCodeID); err != nil {
				return err
			}
			if err := f.versionRepo.MarkFavorite(txCtx, newFavorite.ID); err != nil {
				return err
			}
			if err := f.codeRepo.SetFavoriteVersion(txCtx, version.QRCodeID, &newFavorite.ID); err != nil {
				return err
			}
		}

		imagePath = version.ImagePath
		if version.LogoPath != nil {
			logoPath = *version.LogoPath
		}
		return f.versionRepo.Delete(txCtx, id)
	})
	if err != nil {
		return err
	}

	f.store.Remove(imagePath, logoPath)
	return nil
}

func (f *QRVersionFlowImpl) UploadImage(ctx context.Context, id uint, r io.Reader) (*dto.QRVersionResponse, error) {
	version, err := f.mustVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	contentType, body, err := f.store.SniffImage(r)
	if err != nil {
		return nil, err
	}
	path := f.store.ImagePath(version.QRCodeID, version.ID, contentType)
	if _, err := f.store.Write(path, body, f.cfg.MaxUploadSize); err != nil {
		return nil, err
	}
	if version.ImagePath != "" && version.ImagePath != path {
		f.store.Remove(version.ImagePath)
	}
	if err := f.versionRepo.UpdateFields(ctx, id, map[string]any{"image_path": path}); err != nil {
		return nil, err
	}
	return f.GetVersion(ctx, id)
}

func (f *QRVersionFlowImpl) UploadLogo(ctx context.Context, id uint, r io.Reader) (*dto.QRVersionResponse, error) {
	version, err := f.mustVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	contentType, body, err := f.store.SniffImage(r)
	if err != nil {
		return nil, err
	}
	path := f.store.LogoPath(version.QRCodeID, version.ID, contentType)
	if _, err := f.store.Write(path, body, f.cfg.MaxUploadSize); err != nil {
		return nil, err
	}
	if version.LogoPath != nil && *version.LogoPath != "" && *version.LogoPath != path {
		f.store.Remove(*version.LogoPath)
	}
	if err := f.versionRepo.UpdateFields(ctx, id, map[string]any{"logo_path": path}); err != nil {
		return nil, err
	}
	return f.GetVersion(ctx, id)
}

func (f *QRVersionFlowImpl) GetImage(ctx context.Context, id uint) ([]byte, string, error) {
	version, err := f.mustVersion(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if version.ImagePath == "" {
		return nil, "", NewBusinessError("ARTIFACT_NOT_FOUND", "no image has been uploaded for this version", ErrArtifactNotFound)
	}
	return f.store.Read(version.ImagePath)
}

func (f *QRVersionFlowImpl) GetPreview(ctx context.Context, id uint) ([]byte, error) {
	version, err := f.mustVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if version.ImagePath == "" {
		return nil, NewBusinessError("ARTIFACT_NOT_FOUND", "no image has been uploaded for this version", ErrArtifactNotFound)
	}
	return f.store.Preview(version.ImagePath)
}

func (f *QRVersionFlowImpl) mustVersion(ctx context.Context, id uint) (*models.QRVersion, error) {
	version, err := f.versionRepo.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load version %d: %w", id, err)
	}
	if version == nil {
		return nil, NewBusinessError("VERSION_NOT_FOUND", "version does not exist", ErrVersionNotFound)
	}
	return version, nil
}
