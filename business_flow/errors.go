// Package businessflow contains the core business logic and use cases for the QR code management workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Identity errors
	ErrQRCodeNotFound      = errors.New("QR code not found")
	ErrSlugInvalid         = errors.New("slug format is invalid")
	ErrSlugReserved        = errors.New("slug is a reserved word")
	ErrSlugTaken           = errors.New("slug is already taken")
	ErrDestinationInvalid  = errors.New("destination must be an absolute http or https URL")
	ErrSuggestionExhausted = errors.New("could not generate enough slug suggestions")

	// Version errors
	ErrVersionNotFound         = errors.New("version not found")
	ErrVersionLimitExceeded    = errors.New("version limit reached for this QR code")
	ErrLastVersion             = errors.New("the only remaining version cannot be deleted")
	ErrRequiresNewFavorite     = errors.New("a replacement favorite must be chosen before deleting the favorite version")
	ErrFavoriteNotOwned        = errors.New("replacement favorite does not belong to the same QR code")
	ErrCloneSourceNotOwned     = errors.New("clone source does not belong to the same QR code")
	ErrArtifactNotFound        = errors.New("no image has been uploaded for this version")
	ErrArtifactTypeUnsupported = errors.New("only PNG and JPEG images are accepted")
	ErrArtifactTooLarge        = errors.New("uploaded file exceeds the size limit")

	// Rename gate
	ErrRenameNeedsConfirmation = errors.New("rename requires confirmation because the code has recorded clicks")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// SlugConflictError is returned when a requested slug collides with an
// existing one. Suggestions are valid, available alternatives in priority
// order (numeric, temporal, random).
type SlugConflictError struct {
	Suggestions []string
}

func (e *SlugConflictError) Error() string { return ErrSlugTaken.Error() }

func (e *SlugConflictError) Unwrap() error { return ErrSlugTaken }

// RenameConfirmationError carries the current click count through the soft
// confirmation gate; the caller resubmits with confirmed=true to proceed.
type RenameConfirmationError struct {
	ClickCount uint64
}

func (e *RenameConfirmationError) Error() string { return ErrRenameNeedsConfirmation.Error() }

func (e *RenameConfirmationError) Unwrap() error { return ErrRenameNeedsConfirmation }

// VersionCandidate is one selectable replacement favorite
type VersionCandidate struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// NewFavoriteRequiredError is returned when the favorite version is being
// deleted without a replacement; Candidates lists the other versions the
// caller can promote.
type NewFavoriteRequiredError struct {
	Candidates []VersionCandidate
}

func (e *NewFavoriteRequiredError) Error() string { return ErrRequiresNewFavorite.Error() }

func (e *NewFavoriteRequiredError) Unwrap() error { return ErrRequiresNewFavorite }

func IsQRCodeNotFound(err error) bool {
	return errors.Is(err, ErrQRCodeNotFound)
}

func IsSlugInvalid(err error) bool {
	return errors.Is(err, ErrSlugInvalid)
}

func IsSlugReserved(err error) bool {
	return errors.Is(err, ErrSlugReserved)
}

func IsSlugTaken(err error) bool {
	return errors.Is(err, ErrSlugTaken)
}

func IsDestinationInvalid(err error) bool {
	return errors.Is(err, ErrDestinationInvalid)
}

func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

func IsVersionLimitExceeded(err error) bool {
	return errors.Is(err, ErrVersionLimitExceeded)
}

func IsLastVersion(err error) bool {
	return errors.Is(err, ErrLastVersion)
}

func IsRequiresNewFavorite(err error) bool {
	return errors.Is(err, ErrRequiresNewFavorite)
}

func IsFavoriteNotOwned(err error) bool {
	return errors.Is(err, ErrFavoriteNotOwned)
}

func IsCloneSourceNotOwned(err error) bool {
	return errors.Is(err, ErrCloneSourceNotOwned)
}

func IsArtifactNotFound(err error) bool {
	return errors.Is(err, ErrArtifactNotFound)
}

func IsArtifactTypeUnsupported(err error) bool {
	return errors.Is(err, ErrArtifactTypeUnsupported)
}

func IsArtifactTooLarge(err error) bool {
	return errors.Is(err, ErrArtifactTooLarge)
}

func IsRenameNeedsConfirmation(err error) bool {
	return errors.Is(err, ErrRenameNeedsConfirmation)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
