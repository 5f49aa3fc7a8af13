package businessflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCodeRepo is an in-memory QRCodeRepository good enough for slug checks
type stubCodeRepo struct {
	taken map[string]bool
}

func newStubCodeRepo(taken ...string) *stubCodeRepo {
	m := make(map[string]bool, len(taken))
	for _, slug := range taken {
		m[slug] = true
	}
	return &stubCodeRepo{taken: m}
}

func (r *stubCodeRepo) ByID(ctx context.Context, id uint) (*models.QRCode, error) { return nil, nil }
func (r *stubCodeRepo) ByFilter(ctx context.Context, filter models.QRCodeFilter, orderBy string, limit, offset int) ([]*models.QRCode, error) {
	return nil, nil
}
func (r *stubCodeRepo) Save(ctx context.Context, entity *models.QRCode) error { return nil }
func (r *stubCodeRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.QRCode, error) {
	return nil, nil
}
func (r *stubCodeRepo) Count(ctx context.Context, filter models.QRCodeFilter) (int64, error) {
	return 0, nil
}
func (r *stubCodeRepo) Exists(ctx context.Context, filter models.QRCodeFilter) (bool, error) {
	return false, nil
}
func (r *stubCodeRepo) BySlug(ctx context.Context, slug string) (*models.QRCode, error) {
	return nil, nil
}
func (r *stubCodeRepo) SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error) {
	return r.taken[slug], nil
}
func (r *stubCodeRepo) IncrementClicks(ctx context.Context, id uint) error { return nil }
func (r *stubCodeRepo) ResetClicks(ctx context.Context, id uint) error     { return nil }
func (r *stubCodeRepo) UpdateSlug(ctx context.Context, id uint, slug string) error {
	return nil
}
func (r *stubCodeRepo) UpdateFields(ctx context.Context, id uint, updates map[string]any) error {
	return nil
}
func (r *stubCodeRepo) SetFavoriteVersion(ctx context.Context, id uint, versionID *uint) error {
	return nil
}
func (r *stubCodeRepo) Delete(ctx context.Context, id uint) error { return nil }

func newTestEngine(repo *stubCodeRepo, reserved ...string) *SlugEngine {
	return NewSlugEngine(repo, &config.QRConfig{
		ReservedSlugs: reserved,
		MaxSlugLength: 33,
	})
}

func TestSlugEngineValidate(t *testing.T) {
	engine := newTestEngine(newStubCodeRepo(), "api", "admin")

	valid := []string{
		"a",
		"promo",
		"summer-sale",
		"summer_sale_2026",
		"MixedCase-123",
		strings.Repeat("x", 33),
	}
	for _, slug := range valid {
		assert.NoError(t, engine.Validate(slug), "expected %q to be valid", slug)
	}

	invalid := []string{
		"",
		strings.Repeat("x", 34),
		"has space",
		"has/slash",
		"emoji-☂",
		"dot.dot",
	}
	for _, slug := range invalid {
		err := engine.Validate(slug)
		require.Error(t, err, "expected %q to be invalid", slug)
		assert.True(t, IsSlugInvalid(err))
	}
}

func TestSlugEngineValidateReserved(t *testing.T) {
	engine := newTestEngine(newStubCodeRepo(), "api", "admin")

	for _, slug := range []string{"api", "API", "Admin"} {
		err := engine.Validate(slug)
		require.Error(t, err)
		assert.True(t, IsSlugReserved(err), "expected %q to be reserved", slug)
		assert.False(t, IsSlugInvalid(err))
	}

	// Reserved words still pass the charset check
	assert.True(t, engine.ValidFormat("api"))
}

func TestSlugEngineIsAvailable(t *testing.T) {
	engine := newTestEngine(newStubCodeRepo("promo"))
	ctx := context.Background()

	available, err := engine.IsAvailable(ctx, "promo", 0)
	require.NoError(t, err)
	assert.False(t, available)

	available, err = engine.IsAvailable(ctx, "promo-2", 0)
	require.NoError(t, err)
	assert.True(t, available)
}

func TestSlugEngineSuggestOrdering(t *testing.T) {
	// promo-2 and promo-3 are taken, so the numeric tier starts at promo-4
	engine := newTestEngine(newStubCodeRepo("promo", "promo-2", "promo-3"))

	suggestions, err := engine.Suggest(context.Background(), "promo", 5)
	require.NoError(t, err)
	require.Len(t, suggestions, 5)

	now := utils.UTCNow()
	expected := []string{
		"promo-4",
		"promo-5",
		"promo-6",
		fmt.Sprintf("promo-%d", now.Year()),
		fmt.Sprintf("promo-%s-%d", strings.ToLower(now.Format("Jan")), now.Year()),
	}
	assert.Equal(t, expected, suggestions)
}

func TestSlugEngineSuggestRandomTier(t *testing.T) {
	now := utils.UTCNow()
	taken := []string{
		"promo", "promo-2", "promo-3", "promo-4", "promo-5", "promo-6",
		fmt.Sprintf("promo-%d", now.Year()),
		fmt.Sprintf("promo-%s-%d", strings.ToLower(now.Format("Jan")), now.Year()),
	}
	engine := newTestEngine(newStubCodeRepo(taken...))

	suggestions, err := engine.Suggest(context.Background(), "promo", 5)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	for _, suggestion := range suggestions {
		require.True(t, strings.HasPrefix(suggestion, "promo-"), "unexpected suggestion %q", suggestion)
		suffix := strings.TrimPrefix(suggestion, "promo-")
		require.Len(t, suffix, 3)
		for _, ch := range suffix {
			assert.Contains(t, suggestionAlphabet, string(ch))
			assert.NotContains(t, "0O1I", string(ch))
		}
	}
}

func TestSlugEngineSuggestRespectsLength(t *testing.T) {
	// Every candidate built from a max-length base exceeds the limit
	base := strings.Repeat("x", 33)
	engine := newTestEngine(newStubCodeRepo(base))

	suggestions, err := engine.Suggest(context.Background(), base, 5)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestSlugEngineSuggestSkipsReserved(t *testing.T) {
	engine := newTestEngine(newStubCodeRepo("promo"), "promo-2")

	suggestions, err := engine.Suggest(context.Background(), "promo", 3)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.NotContains(t, suggestions, "promo-2")
	assert.Equal(t, "promo-3", suggestions[0])
}
