package businessflow

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	artifactDirName = "qrcodes"
	logoDirName     = "logos"

	contentTypePNG  = "image/png"
	contentTypeJPEG = "image/jpeg"

	previewMaxDimension = 512
	previewJPEGQuality  = 80
)

// ArtifactStore owns the on-disk layout for rendered images and logos.
// Paths are keyed by the immutable code and version ids, never by the slug,
// so renames are metadata-only operations.
type ArtifactStore struct {
	root string
}

func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: filepath.Clean(root)}
}

// CodeDir is <root>/qrcodes/<codeID>
func (s *ArtifactStore) CodeDir(codeID uint) string {
	return filepath.Join(s.root, artifactDirName, fmt.Sprintf("%d", codeID))
}

// LogoDir is <root>/qrcodes/<codeID>/logos
func (s *ArtifactStore) LogoDir(codeID uint) string {
	return filepath.Join(s.CodeDir(codeID), logoDirName)
}

// ImagePath is <root>/qrcodes/<codeID>/<versionID>.<ext>
func (s *ArtifactStore) ImagePath(codeID, versionID uint, contentType string) string {
	return filepath.Join(s.CodeDir(codeID), fmt.Sprintf("%d%s", versionID, extensionFor(contentType)))
}

// LogoPath is <root>/qrcodes/<codeID>/logos/<versionID>.<ext>
func (s *ArtifactStore) LogoPath(codeID, versionID uint, contentType string) string {
	return filepath.Join(s.LogoDir(codeID), fmt.Sprintf("%d%s", versionID, extensionFor(contentType)))
}

func extensionFor(contentType string) string {
	if contentType == contentTypeJPEG {
		return ".jpg"
	}
	return ".png"
}

// EnsureDirs materializes the storage directories for one code
func (s *ArtifactStore) EnsureDirs(codeID uint) error {
	if err := os.MkdirAll(s.LogoDir(codeID), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directories for code %d: %w", codeID, err)
	}
	return nil
}

// SniffImage reads the head of r, verifies the payload is PNG or JPEG and
// returns the detected content type together with a reader that replays the
// sniffed bytes.
func (s *ArtifactStore) SniffImage(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if contentType != contentTypePNG && contentType != contentTypeJPEG {
		return "", nil, NewBusinessError("UNSUPPORTED_MEDIA",
			fmt.Sprintf("detected content type %s is not allowed", contentType),
			ErrArtifactTypeUnsupported)
	}
	return contentType, io.MultiReader(bytes.NewReader(head), r), nil
}

// Write streams an artifact to path, rejecting payloads larger than maxSize
// bytes. The parent directory is created on demand so uploads survive a
// missing materialization step.
func (s *ArtifactStore) Write(path string, r io.Reader, maxSize int64) (int64, error) {
	if err := s.checkPath(path); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()

	// Copy one byte past the cap so an oversized payload is detected
	// instead of silently truncated into a corrupt partial image.
	written, err := io.Copy(f, io.LimitReader(r, maxSize+1))
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write artifact: %w", err)
	}
	if written > maxSize {
		os.Remove(path)
		return 0, NewBusinessError("UPLOAD_TOO_LARGE",
			fmt.Sprintf("uploaded file exceeds the %d byte limit", maxSize),
			ErrArtifactTooLarge)
	}
	return written, nil
}

// Read loads a stored artifact and reports its sniffed content type
func (s *ArtifactStore) Read(path string) ([]byte, string, error) {
	if err := s.checkPath(path); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrArtifactNotFound
		}
		return nil, "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// Preview decodes a stored image and returns a JPEG thumbnail bounded by
// previewMaxDimension on the longer side. Images already small enough are
// re-encoded without scaling.
func (s *ArtifactStore) Preview(path string) ([]byte, error) {
	data, _, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > previewMaxDimension || height > previewMaxDimension {
		if width >= height {
			height = height * previewMaxDimension / width
			width = previewMaxDimension
		} else {
			width = width * previewMaxDimension / height
			height = previewMaxDimension
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Remove deletes stored artifacts, ignoring already-missing files. Failures
// are logged, not returned; records win over files and cleanup can re-run.
func (s *ArtifactStore) Remove(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := s.checkPath(path); err != nil {
			log.Printf("refusing to remove artifact outside storage root: %v", err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to remove artifact %s: %v", path, err)
		}
	}
}

// RemoveCodeDir deletes the whole artifact tree of one code
func (s *ArtifactStore) RemoveCodeDir(codeID uint) {
	if err := os.RemoveAll(s.CodeDir(codeID)); err != nil {
		log.Printf("failed to remove artifact directory for code %d: %v", codeID, err)
	}
}

// checkPath rejects paths that escape the storage root
func (s *ArtifactStore) checkPath(path string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside the storage root: %w", path, fs.ErrPermission)
	}
	return nil
}
