package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/Kusanagi/repository"
)

// VisitFlow resolves public slugs to redirect destinations and records the
// scan. Resolution is the hot path; everything it does not strictly need is
// kept off it.
type VisitFlow interface {
	Resolve(ctx context.Context, slug string, metadata *ClientMetadata) (string, error)
}

// VisitFlowImpl implements VisitFlow
type VisitFlowImpl struct {
	codeRepo repository.QRCodeRepository
	engine   *SlugEngine
	cache    *DestinationCache
}

func NewVisitFlow(codeRepo repository.QRCodeRepository, engine *SlugEngine, cache *DestinationCache) VisitFlow {
	return &VisitFlowImpl{codeRepo: codeRepo, engine: engine, cache: cache}
}

// Resolve returns the destination URL for slug. Malformed slugs are rejected
// before any storage access. The click increment is decoupled from the
// redirect decision: a failed increment never turns a resolvable scan into
// an error.
func (f *VisitFlowImpl) Resolve(ctx context.Context, slug string, metadata *ClientMetadata) (string, error) {
	if !f.engine.ValidFormat(slug) {
		return "", NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}

	if entry, ok := f.cache.Get(ctx, slug); ok {
		f.recordClick(ctx, entry.ID, slug, metadata)
		return entry.DestinationURL, nil
	}

	code, err := f.codeRepo.BySlug(ctx, slug)
	if err != nil {
		// A resolver that cannot answer in time answers not-found; the
		// public endpoint never surfaces internal failures.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Printf("slug resolution timed out for %q: %v", slug, err)
			return "", NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
		}
		return "", fmt.Errorf("failed to resolve slug %q: %w", slug, err)
	}
	if code == nil {
		return "", NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)
	}

	f.cache.Set(ctx, slug, cachedDestination{ID: code.ID, DestinationURL: code.DestinationURL})
	f.recordClick(ctx, code.ID, slug, metadata)
	return code.DestinationURL, nil
}

func (f *VisitFlowImpl) recordClick(ctx context.Context, codeID uint, slug string, metadata *ClientMetadata) {
	if err := f.codeRepo.IncrementClicks(ctx, codeID); err != nil {
		ip := ""
		if metadata != nil {
			ip = metadata.IP
		}
		log.Printf("failed to record click for slug %q (code %d, ip %s): %v", slug, codeID, ip, err)
	}
}
