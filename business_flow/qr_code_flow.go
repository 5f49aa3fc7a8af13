package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QRCodeFlow covers the lifecycle of QR code identities: creation, listing,
// metadata edits, the slug rename workflow, click administration and export.
type QRCodeFlow interface {
	CreateCode(ctx context.Context, req *dto.CreateQRCodeRequest) (*dto.QRCodeResponse, error)
	GetCode(ctx context.Context, id uint) (*dto.QRCodeResponse, error)
	ListCodes(ctx context.Context, req *dto.QRCodeListRequest) (*dto.QRCodeListResponse, error)
	UpdateCode(ctx context.Context, id uint, req *dto.UpdateQRCodeRequest) (*dto.QRCodeResponse, error)
	DeleteCode(ctx context.Context, id uint) error
	RenameSlug(ctx context.Context, id uint, req *dto.RenameSlugRequest) (*dto.RenameSlugResponse, error)
	CheckSlug(ctx context.Context, req *dto.CheckSlugRequest) (*dto.CheckSlugResponse, error)
	ResetClicks(ctx context.Context, id uint) (*dto.QRCodeResponse, error)
	ExportCodes(ctx context.Context) (string, []byte, error)
}

// QRCodeFlowImpl implements QRCodeFlow
type QRCodeFlowImpl struct {
	codeRepo    repository.QRCodeRepository
	versionRepo repository.QRVersionRepository
	engine      *SlugEngine
	store       *ArtifactStore
	cache       *DestinationCache
	db          *gorm.DB
	cfg         *config.QRConfig
}

func NewQRCodeFlow(
	codeRepo repository.QRCodeRepository,
	versionRepo repository.QRVersionRepository,
	engine *SlugEngine,
	store *ArtifactStore,
	cache *DestinationCache,
	db *gorm.DB,
	cfg *config.QRConfig,
) QRCodeFlow {
	return &QRCodeFlowImpl{
		codeRepo:    codeRepo,
		versionRepo: versionRepo,
		engine:      engine,
		store:       store,
		cache:       cache,
		db:          db,
		cfg:         cfg,
	}
}

// validateDestination accepts only absolute http or https URLs
func validateDestination(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewBusinessError("DESTINATION_INVALID", "destination URL must be absolute http or https", ErrDestinationInvalid)
	}
	return nil
}

// slugConflict builds the conflict error, attaching whatever suggestions
// could be generated. Suggestion failures degrade to an empty list.
func (f *QRCodeFlowImpl) slugConflict(ctx context.Context, base string) error {
	suggestions, err := f.engine.Suggest(ctx, base, utils.SlugSuggestionCount)
	if err != nil {
		log.Printf("failed to generate slug suggestions for %q: %v", base, err)
		suggestions = nil
	}
	return &SlugConflictError{Suggestions: suggestions}
}

func (f *QRCodeFlowImpl) CreateCode(ctx context.Context, req *dto.CreateQRCodeRequest) (*dto.QRCodeResponse, error) {
	if err := f.engine.Validate(req.Slug); err != nil {
		return nil, err
	}
	if err := validateDestination(req.DestinationURL); err != nil {
		return nil, err
	}

	code := &models.QRCode{
		Slug:           req.Slug,
		DestinationURL: req.DestinationURL,
		Title:          req.Title,
		Description:    req.Description,
		Tags:           req.Tags,
	}
	// Uniqueness is enforced by the database constraint, not by a prior
	// existence check, so concurrent creates cannot race past each other.
	if err := f.codeRepo.Save(ctx, code); err != nil {
		if repository.IsDuplicateSlug(err) {
			return nil, f.slugConflict(ctx, req.Slug)
		}
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	resp := toQRCodeResponse(code, f.cfg.BasePublicURL, 0)
	return &resp, nil
}

func (f *QRCodeFlowImpl) GetCode(ctx context.Context, id uint) (*dto.QRCodeResponse, error) {
	code, err := f.codeRepo.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load QR code %d: %w", id, err)
	}
	if code == nil {
		return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}
	count, err := f.versionRepo.CountByCode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count versions for code %d: %w", id, err)
	}
	resp := toQRCodeResponse(code, f.cfg.BasePublicURL, count)
	return &resp, nil
}

func (f *QRCodeFlowImpl) ListCodes(ctx context.Context, req *dto.QRCodeListRequest) (*dto.QRCodeListResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return nil, NewBusinessError("INVALID_PAGE", "page must be at least 1", ErrInvalidPage)
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return nil, NewBusinessError("INVALID_PAGE_SIZE",
			fmt.Sprintf("page size must be between 1 and %d", maxPageSize), ErrInvalidPageSize)
	}

	filter := models.QRCodeFilter{Tag: req.Tag}
	total, err := f.codeRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count QR codes: %w", err)
	}
	codes, err := f.codeRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list QR codes: %w", err)
	}

	items := make([]dto.QRCodeResponse, 0, len(codes))
	for _, code := range codes {
		count, err := f.versionRepo.CountByCode(ctx, code.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count versions for code %d: %w", code.ID, err)
		}
		items = append(items, toQRCodeResponse(code, f.cfg.BasePublicURL, count))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &dto.QRCodeListResponse{
		Items: items,
		Pagination: dto.PaginationResponse{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

func (f *QRCodeFlowImpl) UpdateCode(ctx context.Context, id uint, req *dto.UpdateQRCodeRequest) (*dto.QRCodeResponse, error) {
	code, err := f.codeRepo.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load QR code %d: %w", id, err)
	}
	if code == nil {
		return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}

	updates := map[string]any{}
	destinationChanged := false
	if req.DestinationURL != nil {
		if err := validateDestination(*req.DestinationURL); err != nil {
			return nil, err
		}
		updates["destination_url"] = *req.DestinationURL
		destinationChanged = *req.DestinationURL != code.DestinationURL
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Tags != nil {
		updates["tags"] = pq.StringArray(req.Tags)
	}

	if len(updates) > 0 {
		if err := f.codeRepo.UpdateFields(ctx, id, updates); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
			}
			return nil, err
		}
	}
	if destinationChanged {
		f.cache.Invalidate(ctx, code.Slug)
	}

	return f.GetCode(ctx, id)
}

func (f *QRCodeFlowImpl) DeleteCode(ctx context.Context, id uint) error {
	code, err := f.codeRepo.ByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load QR code %d: %w", id, err)
	}
	if code == nil {
		return NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.versionRepo.DeleteByCode(txCtx, id); err != nil {
			return err
		}
		return f.codeRepo.Delete(txCtx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete QR code %d: %w", id, err)
	}

	// Records win over files; directory removal after commit is best-effort
	f.store.RemoveCodeDir(id)
	f.cache.Invalidate(ctx, code.Slug)
	return nil
}

func (f *QRCodeFlowImpl) RenameSlug(ctx context.Context, id uint, req *dto.RenameSlugRequest) (*dto.RenameSlugResponse, error) {
	code, err := f.codeRepo.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load QR code %d: %w", id, err)
	}
	if code == nil {
		return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}
	if err := f.engine.Validate(req.NewSlug); err != nil {
		return nil, err
	}

	oldSlug := code.Slug
	if req.NewSlug == oldSlug {
		return &dto.RenameSlugResponse{
			ID:        code.ID,
			OldSlug:   oldSlug,
			Slug:      oldSlug,
			PublicURL: PublicURL(f.cfg.BasePublicURL, oldSlug),
		}, nil
	}

	// Soft gate: a code with recorded scans changes its public URL only on
	// an explicit, confirmed request.
	if code.ClickCount > 0 && !req.Confirmed {
		return nil, &RenameConfirmationError{ClickCount: code.ClickCount}
	}

	if err := f.codeRepo.UpdateSlug(ctx, id, req.NewSlug); err != nil {
		if repository.IsDuplicateSlug(err) {
			return nil, f.slugConflict(ctx, req.NewSlug)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
		}
		return nil, err
	}

	// The old slug must stop resolving immediately, not at TTL expiry
	f.cache.Invalidate(ctx, oldSlug)

	return &dto.RenameSlugResponse{
		ID:        code.ID,
		OldSlug:   oldSlug,
		Slug:      req.NewSlug,
		PublicURL: PublicURL(f.cfg.BasePublicURL, req.NewSlug),
	}, nil
}

func (f *QRCodeFlowImpl) CheckSlug(ctx context.Context, req *dto.CheckSlugRequest) (*dto.CheckSlugResponse, error) {
	resp := &dto.CheckSlugResponse{Slug: req.Slug}

	if err := f.engine.Validate(req.Slug); err != nil {
		var bizErr *BusinessError
		if errors.As(err, &bizErr) {
			resp.Reason = bizErr.Message
		}
		return resp, nil
	}
	resp.Valid = true

	available, err := f.engine.IsAvailable(ctx, req.Slug, req.ExcludeID)
	if err != nil {
		return nil, err
	}
	resp.Available = available
	if !available {
		suggestions, err := f.engine.Suggest(ctx, req.Slug, utils.SlugSuggestionCount)
		if err != nil {
			log.Printf("failed to generate slug suggestions for %q: %v", req.Slug, err)
		} else {
			resp.Suggestions = suggestions
		}
	}
	return resp, nil
}

func (f *QRCodeFlowImpl) ResetClicks(ctx context.Context, id uint) (*dto.QRCodeResponse, error) {
	code, err := f.codeRepo.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load QR code %d: %w", id, err)
	}
	if code == nil {
		return nil, NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}
	if err := f.codeRepo.ResetClicks(ctx, id); err != nil {
		return nil, err
	}
	return f.GetCode(ctx, id)
}
