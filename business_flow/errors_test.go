package businessflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessErrorUnwrapping(t *testing.T) {
	err := NewBusinessError("QR_CODE_NOT_FOUND", "QR code does not exist", ErrQRCodeNotFound)

	assert.True(t, IsQRCodeNotFound(err))
	assert.False(t, IsVersionNotFound(err))
	assert.Contains(t, err.Error(), "QR code does not exist")

	// Predicates survive another layer of wrapping
	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsQRCodeNotFound(wrapped))
}

func TestSlugConflictErrorCarriesSuggestions(t *testing.T) {
	var err error = &SlugConflictError{Suggestions: []string{"promo-2", "promo-3"}}

	assert.True(t, IsSlugTaken(err))

	var conflict *SlugConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"promo-2", "promo-3"}, conflict.Suggestions)
}

func TestRenameConfirmationErrorCarriesClickCount(t *testing.T) {
	var err error = &RenameConfirmationError{ClickCount: 42}

	assert.True(t, IsRenameNeedsConfirmation(err))

	var confirmation *RenameConfirmationError
	require.True(t, errors.As(err, &confirmation))
	assert.Equal(t, uint64(42), confirmation.ClickCount)
}

func TestNewFavoriteRequiredErrorCarriesCandidates(t *testing.T) {
	var err error = &NewFavoriteRequiredError{
		Candidates: []VersionCandidate{{ID: 2, Name: "Blue"}, {ID: 3, Name: "Gold"}},
	}

	assert.True(t, IsRequiresNewFavorite(err))

	var required *NewFavoriteRequiredError
	require.True(t, errors.As(err, &required))
	require.Len(t, required.Candidates, 2)
	assert.Equal(t, uint(2), required.Candidates[0].ID)
	assert.Equal(t, "Gold", required.Candidates[1].Name)
}
