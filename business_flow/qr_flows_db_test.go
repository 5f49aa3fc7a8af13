package businessflow_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/repository"
	testingutil "github.com/amirphl/Kusanagi/testing"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testFlows struct {
	codeFlow    businessflow.QRCodeFlow
	versionFlow businessflow.QRVersionFlow
	visitFlow   businessflow.VisitFlow
	cfg         *config.QRConfig
}

func newTestFlows(t *testing.T, tdb *testingutil.TestDB, maxVersions int) *testFlows {
	t.Helper()

	cfg := &config.QRConfig{
		ReservedSlugs:      []string{"api", "admin", "health"},
		MaxSlugLength:      33,
		MaxVersionsPerCode: maxVersions,
		BasePublicURL:      "https://kusanagi.test",
		StorageRoot:        t.TempDir(),
		ResolveTimeout:     3 * time.Second,
		MaxUploadSize:      5 * 1024 * 1024,
	}

	codeRepo := repository.NewQRCodeRepository(tdb.DB)
	versionRepo := repository.NewQRVersionRepository(tdb.DB)
	engine := businessflow.NewSlugEngine(codeRepo, cfg)
	store := businessflow.NewArtifactStore(cfg.StorageRoot)
	var cache *businessflow.DestinationCache

	return &testFlows{
		codeFlow:    businessflow.NewQRCodeFlow(codeRepo, versionRepo, engine, store, cache, tdb.DB, cfg),
		versionFlow: businessflow.NewQRVersionFlow(codeRepo, versionRepo, store, tdb.DB, cfg),
		visitFlow:   businessflow.NewVisitFlow(codeRepo, engine, cache),
		cfg:         cfg,
	}
}

func createCode(t *testing.T, flows *testFlows, slug string) *dto.QRCodeResponse {
	t.Helper()
	code, err := flows.codeFlow.CreateCode(context.Background(), &dto.CreateQRCodeRequest{
		Slug:           slug,
		DestinationURL: "https://example.com/landing",
	})
	require.NoError(t, err)
	return code
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func TestQRCodeLifecycle(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "summer-sale")
		assert.Equal(t, "summer-sale", code.Slug)
		assert.Equal(t, "https://kusanagi.test/summer-sale", code.PublicURL)
		assert.Equal(t, uint64(0), code.ClickCount)
		assert.Nil(t, code.FavoriteVersionID)

		// Uniqueness is store-enforced; the conflict carries suggestions
		_, err := flows.codeFlow.CreateCode(ctx, &dto.CreateQRCodeRequest{
			Slug:           "summer-sale",
			DestinationURL: "https://example.com/other",
		})
		require.Error(t, err)
		var conflict *businessflow.SlugConflictError
		require.True(t, errors.As(err, &conflict))
		assert.NotEmpty(t, conflict.Suggestions)
		assert.Equal(t, "summer-sale-2", conflict.Suggestions[0])

		updated, err := flows.codeFlow.UpdateCode(ctx, code.ID, &dto.UpdateQRCodeRequest{
			DestinationURL: utils.ToPtr("https://example.com/updated"),
			Title:          utils.ToPtr("Summer Sale"),
			Tags:           []string{"summer", "sale"},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/updated", updated.DestinationURL)
		assert.Equal(t, []string{"summer", "sale"}, updated.Tags)

		listed, err := flows.codeFlow.ListCodes(ctx, &dto.QRCodeListRequest{Tag: utils.ToPtr("summer")})
		require.NoError(t, err)
		require.Len(t, listed.Items, 1)
		assert.Equal(t, code.ID, listed.Items[0].ID)

		require.NoError(t, flows.codeFlow.DeleteCode(ctx, code.ID))
		_, err = flows.codeFlow.GetCode(ctx, code.ID)
		assert.True(t, businessflow.IsQRCodeNotFound(err))
	})
}

func TestFirstVersionBecomesFavorite(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "launch")

		first, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
		require.NoError(t, err)
		assert.True(t, first.IsFavorite)
		assert.Equal(t, "Default", first.Name)
		assert.NotEmpty(t, first.StyleConfig)

		second, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{
			Name: utils.ToPtr("Blue"),
		})
		require.NoError(t, err)
		assert.False(t, second.IsFavorite)

		reloaded, err := flows.codeFlow.GetCode(ctx, code.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.FavoriteVersionID)
		assert.Equal(t, first.ID, *reloaded.FavoriteVersionID)
		assert.Equal(t, int64(2), reloaded.VersionCount)
	})
}

func TestSetFavoriteMovesPointerAtomically(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "atomic")
		var versionIDs []uint
		for i := 0; i < 3; i++ {
			v, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
			require.NoError(t, err)
			versionIDs = append(versionIDs, v.ID)
		}

		promoted, err := flows.versionFlow.SetFavorite(ctx, versionIDs[2])
		require.NoError(t, err)
		assert.True(t, promoted.IsFavorite)

		// Exactly one favorite, and the code pointer follows it
		list, err := flows.versionFlow.ListVersions(ctx, code.ID)
		require.NoError(t, err)
		favorites := 0
		for _, v := range list.Items {
			if v.IsFavorite {
				favorites++
				assert.Equal(t, versionIDs[2], v.ID)
			}
		}
		assert.Equal(t, 1, favorites)

		reloaded, err := flows.codeFlow.GetCode(ctx, code.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.FavoriteVersionID)
		assert.Equal(t, versionIDs[2], *reloaded.FavoriteVersionID)

		// Promoting the current favorite again is a no-op, not an error
		_, err = flows.versionFlow.SetFavorite(ctx, versionIDs[2])
		require.NoError(t, err)
	})
}

func TestDeleteVersionGuards(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "guarded")
		only, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
		require.NoError(t, err)

		// The last remaining version is not deletable
		err = flows.versionFlow.DeleteVersion(ctx, only.ID, nil)
		assert.True(t, businessflow.IsLastVersion(err))

		other, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{
			Name: utils.ToPtr("Gold"),
		})
		require.NoError(t, err)

		// Deleting the favorite without a replacement lists the candidates
		err = flows.versionFlow.DeleteVersion(ctx, only.ID, nil)
		var required *businessflow.NewFavoriteRequiredError
		require.True(t, errors.As(err, &required))
		require.Len(t, required.Candidates, 1)
		assert.Equal(t, other.ID, required.Candidates[0].ID)
		assert.Equal(t, "Gold", required.Candidates[0].Name)

		// A replacement from another code is rejected
		foreign := createCode(t, flows, "foreign")
		foreignVersion, err := flows.versionFlow.CreateVersion(ctx, foreign.ID, &dto.CreateVersionRequest{})
		require.NoError(t, err)
		err = flows.versionFlow.DeleteVersion(ctx, only.ID, &foreignVersion.ID)
		assert.True(t, businessflow.IsFavoriteNotOwned(err))

		// With a valid replacement the promotion and delete are atomic
		require.NoError(t, flows.versionFlow.DeleteVersion(ctx, only.ID, &other.ID))

		list, err := flows.versionFlow.ListVersions(ctx, code.ID)
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.Equal(t, other.ID, list.Items[0].ID)
		assert.True(t, list.Items[0].IsFavorite)

		reloaded, err := flows.codeFlow.GetCode(ctx, code.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.FavoriteVersionID)
		assert.Equal(t, other.ID, *reloaded.FavoriteVersionID)
	})
}

func TestConcurrentDeletesKeepOneVersion(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "contended")
		favorite, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
		require.NoError(t, err)
		other, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{
			Name: utils.ToPtr("Backup"),
		})
		require.NoError(t, err)

		// Two racing deletes on a two-version code: whichever commits first
		// leaves a single version, and the loser must fail its count check
		// instead of emptying the code.
		errs := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[0] = flows.versionFlow.DeleteVersion(ctx, favorite.ID, &other.ID)
		}()
		go func() {
			defer wg.Done()
			errs[1] = flows.versionFlow.DeleteVersion(ctx, other.ID, nil)
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, businessflow.IsLastVersion(err) || businessflow.IsVersionNotFound(err),
				"unexpected delete error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		list, err := flows.versionFlow.ListVersions(ctx, code.ID)
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.True(t, list.Items[0].IsFavorite)

		reloaded, err := flows.codeFlow.GetCode(ctx, code.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.FavoriteVersionID)
		assert.Equal(t, list.Items[0].ID, *reloaded.FavoriteVersionID)
	})
}

func TestConcurrentCreatesRespectVersionCap(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 2)
		ctx := context.Background()

		code := createCode(t, flows, "capped")
		_, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
		require.NoError(t, err)

		// One slot left; two racing creates may fill it exactly once
		errs := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func(i int) {
				defer wg.Done()
				_, errs[i] = flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, businessflow.IsVersionLimitExceeded(err),
				"unexpected create error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		list, err := flows.versionFlow.ListVersions(ctx, code.ID)
		require.NoError(t, err)
		assert.Len(t, list.Items, 2)
	})
}

func TestCreateVersionStylePrecedence(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 2)
		ctx := context.Background()

		code := createCode(t, flows, "styles")
		styled, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{
			StyleConfig: map[string]any{"foreground": "#FF0000", "shape": "rounded"},
		})
		require.NoError(t, err)
		assert.Equal(t, "#FF0000", styled.StyleConfig["foreground"])

		clone, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{
			CloneFromVersionID: &styled.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, styled.StyleConfig, clone.StyleConfig)

		// The cap counts existing versions, not attempts
		_, err = flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
		assert.True(t, businessflow.IsVersionLimitExceeded(err))

		// Clone sources must belong to the same code
		foreign := createCode(t, flows, "styles-foreign")
		_, err = flows.versionFlow.CreateVersion(ctx, foreign.ID, &dto.CreateVersionRequest{
			CloneFromVersionID: &styled.ID,
		})
		assert.True(t, businessflow.IsCloneSourceNotOwned(err))
	})
}

func TestRenameSlugWorkflow(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "summer-sale")

		// Record two scans
		for i := 0; i < 2; i++ {
			destination, err := flows.visitFlow.Resolve(ctx, "summer-sale", nil)
			require.NoError(t, err)
			assert.Equal(t, "https://example.com/landing", destination)
		}

		// A code with recorded clicks needs explicit confirmation
		_, err := flows.codeFlow.RenameSlug(ctx, code.ID, &dto.RenameSlugRequest{NewSlug: "mega-sale"})
		var confirmation *businessflow.RenameConfirmationError
		require.True(t, errors.As(err, &confirmation))
		assert.Equal(t, uint64(2), confirmation.ClickCount)

		renamed, err := flows.codeFlow.RenameSlug(ctx, code.ID, &dto.RenameSlugRequest{
			NewSlug:   "mega-sale",
			Confirmed: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "summer-sale", renamed.OldSlug)
		assert.Equal(t, "mega-sale", renamed.Slug)
		assert.Equal(t, "https://kusanagi.test/mega-sale", renamed.PublicURL)

		// The old slug stops resolving; the new one works and keeps counting
		_, err = flows.visitFlow.Resolve(ctx, "summer-sale", nil)
		assert.True(t, businessflow.IsQRCodeNotFound(err))
		_, err = flows.visitFlow.Resolve(ctx, "mega-sale", nil)
		require.NoError(t, err)

		reloaded, err := flows.codeFlow.GetCode(ctx, code.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), reloaded.ClickCount)

		// Renaming to the current slug is a no-op success
		same, err := flows.codeFlow.RenameSlug(ctx, code.ID, &dto.RenameSlugRequest{NewSlug: "mega-sale"})
		require.NoError(t, err)
		assert.Equal(t, "mega-sale", same.Slug)

		// Conflicts and reserved words are rejected
		createCode(t, flows, "taken")
		_, err = flows.codeFlow.RenameSlug(ctx, code.ID, &dto.RenameSlugRequest{NewSlug: "taken", Confirmed: true})
		assert.True(t, businessflow.IsSlugTaken(err))
		_, err = flows.codeFlow.RenameSlug(ctx, code.ID, &dto.RenameSlugRequest{NewSlug: "admin", Confirmed: true})
		assert.True(t, businessflow.IsSlugReserved(err))
	})
}

func TestResolveUnknownAndMalformedSlugs(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		_, err := flows.visitFlow.Resolve(ctx, "nope", nil)
		assert.True(t, businessflow.IsQRCodeNotFound(err))

		// Malformed slugs are rejected before any storage access
		_, err = flows.visitFlow.Resolve(ctx, "bad slug!", nil)
		assert.True(t, businessflow.IsQRCodeNotFound(err))
	})
}

func TestCheckSlug(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		resp, err := flows.codeFlow.CheckSlug(ctx, &dto.CheckSlugRequest{Slug: "has space"})
		require.NoError(t, err)
		assert.False(t, resp.Valid)
		assert.NotEmpty(t, resp.Reason)

		resp, err = flows.codeFlow.CheckSlug(ctx, &dto.CheckSlugRequest{Slug: "admin"})
		require.NoError(t, err)
		assert.False(t, resp.Valid)

		resp, err = flows.codeFlow.CheckSlug(ctx, &dto.CheckSlugRequest{Slug: "fresh"})
		require.NoError(t, err)
		assert.True(t, resp.Valid)
		assert.True(t, resp.Available)
		assert.Empty(t, resp.Suggestions)

		code := createCode(t, flows, "fresh")
		resp, err = flows.codeFlow.CheckSlug(ctx, &dto.CheckSlugRequest{Slug: "fresh"})
		require.NoError(t, err)
		assert.True(t, resp.Valid)
		assert.False(t, resp.Available)
		assert.NotEmpty(t, resp.Suggestions)

		// A record may keep its own slug during edits
		resp, err = flows.codeFlow.CheckSlug(ctx, &dto.CheckSlugRequest{Slug: "fresh", ExcludeID: code.ID})
		require.NoError(t, err)
		assert.True(t, resp.Available)
	})
}

func TestResetClicks(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "counted")
		_, err := flows.visitFlow.Resolve(ctx, "counted", nil)
		require.NoError(t, err)

		reset, err := flows.codeFlow.ResetClicks(ctx, code.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), reset.ClickCount)
	})
}

func TestUploadAndServeImage(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		code := createCode(t, flows, "imaged")
		version, err := flows.versionFlow.CreateVersion(ctx, code.ID, &dto.CreateVersionRequest{})
		require.NoError(t, err)
		assert.False(t, version.HasImage)

		content := smallPNG(t)
		uploaded, err := flows.versionFlow.UploadImage(ctx, version.ID, bytes.NewReader(content))
		require.NoError(t, err)
		assert.True(t, uploaded.HasImage)
		assert.NotEmpty(t, uploaded.ImageURL)

		served, contentType, err := flows.versionFlow.GetImage(ctx, version.ID)
		require.NoError(t, err)
		assert.Equal(t, content, served)
		assert.Equal(t, "image/png", contentType)

		preview, err := flows.versionFlow.GetPreview(ctx, version.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, preview)

		_, err = flows.versionFlow.UploadImage(ctx, version.ID, bytes.NewReader([]byte("not an image payload")))
		assert.True(t, businessflow.IsArtifactTypeUnsupported(err))
	})
}

func TestExportCodes(t *testing.T) {
	testingutil.TestWithDB(t, func(t *testing.T, tdb *testingutil.TestDB) {
		flows := newTestFlows(t, tdb, 20)
		ctx := context.Background()

		createCode(t, flows, "export-one")
		createCode(t, flows, "export-two")

		fileName, content, err := flows.codeFlow.ExportCodes(ctx)
		require.NoError(t, err)
		assert.Contains(t, fileName, ".xlsx")
		require.NotEmpty(t, content)

		workbook, err := excelize.OpenReader(bytes.NewReader(content))
		require.NoError(t, err)
		defer workbook.Close()

		rows, err := workbook.GetRows("QR Codes")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Slug", rows[0][1])
		assert.Equal(t, "export-one", rows[1][1])
		assert.Equal(t, "export-two", rows[2][1])
	})
}
