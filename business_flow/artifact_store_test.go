package businessflow

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestArtifactStorePaths(t *testing.T) {
	store := NewArtifactStore("/data")

	assert.Equal(t, filepath.Join("/data", "qrcodes", "12"), store.CodeDir(12))
	assert.Equal(t, filepath.Join("/data", "qrcodes", "12", "logos"), store.LogoDir(12))
	assert.Equal(t, filepath.Join("/data", "qrcodes", "12", "34.png"), store.ImagePath(12, 34, "image/png"))
	assert.Equal(t, filepath.Join("/data", "qrcodes", "12", "34.jpg"), store.ImagePath(12, 34, "image/jpeg"))
	assert.Equal(t, filepath.Join("/data", "qrcodes", "12", "logos", "34.png"), store.LogoPath(12, 34, "image/png"))
}

func TestArtifactStorePathsIgnoreSlug(t *testing.T) {
	// Paths are keyed by ids only; two stores with the same root agree
	// regardless of any slug the code currently has.
	a := NewArtifactStore("data")
	b := NewArtifactStore("data/")
	assert.Equal(t, a.ImagePath(1, 2, "image/png"), b.ImagePath(1, 2, "image/png"))
}

func TestArtifactStoreSniffImage(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	original := encodePNG(t, 8, 8)
	contentType, body, err := store.SniffImage(bytes.NewReader(original))
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	// The sniffed head is replayed; nothing is lost
	replayed, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, original, replayed)
}

func TestArtifactStoreSniffImageRejectsOtherTypes(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	payloads := [][]byte{
		[]byte("<svg xmlns=\"http://www.w3.org/2000/svg\"></svg>"),
		[]byte("GIF89a" + string(make([]byte, 64))),
		[]byte("plain text that is definitely not an image"),
	}
	for _, payload := range payloads {
		_, _, err := store.SniffImage(bytes.NewReader(payload))
		require.Error(t, err)
		assert.True(t, IsArtifactTypeUnsupported(err))
	}
}

func TestArtifactStoreWriteReadRemove(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	content := encodePNG(t, 4, 4)
	path := store.ImagePath(1, 2, "image/png")

	written, err := store.Write(path, bytes.NewReader(content), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), written)

	data, contentType, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "image/png", contentType)

	store.Remove(path)
	_, _, err = store.Read(path)
	require.Error(t, err)
	assert.True(t, IsArtifactNotFound(err))

	// Removing again is a no-op
	store.Remove(path, "")
}

func TestArtifactStoreWriteRejectsOversizedPayload(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	content := encodePNG(t, 16, 16)
	path := store.ImagePath(1, 3, "image/png")

	_, err := store.Write(path, bytes.NewReader(content), int64(len(content))-1)
	require.Error(t, err)
	assert.True(t, IsArtifactTooLarge(err))

	// No truncated partial file is left behind
	_, _, err = store.Read(path)
	require.Error(t, err)
	assert.True(t, IsArtifactNotFound(err))

	// A payload exactly at the limit goes through
	written, err := store.Write(path, bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), written)

	data, _, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestArtifactStoreRejectsEscapingPaths(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	_, err := store.Write(filepath.Join("/tmp", "outside.png"), bytes.NewReader([]byte("x")), 1<<20)
	require.Error(t, err)

	_, _, err = store.Read(filepath.Join(store.root, "..", "escape.png"))
	require.Error(t, err)
}

func TestArtifactStorePreviewScalesDown(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	path := store.ImagePath(3, 4, "image/png")
	_, err := store.Write(path, bytes.NewReader(encodePNG(t, 1024, 512)), 1<<20)
	require.NoError(t, err)

	preview, err := store.Preview(path)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestArtifactStorePreviewKeepsSmallImages(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	path := store.ImagePath(3, 5, "image/png")
	_, err := store.Write(path, bytes.NewReader(encodePNG(t, 100, 80)), 1<<20)
	require.NoError(t, err)

	preview, err := store.Preview(path)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(preview))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestArtifactStoreEnsureDirs(t *testing.T) {
	store := NewArtifactStore(t.TempDir())
	require.NoError(t, store.EnsureDirs(7))
	// Idempotent
	require.NoError(t, store.EnsureDirs(7))
}
