// Package testing provides test utilities and database setup for testing the QR code management core
package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestQRCode creates a QR code with a random slug when slug is empty
func (tf *TestFixtures) CreateTestQRCode(slug string) (*models.QRCode, error) {
	if slug == "" {
		slug = fmt.Sprintf("code-%06d", rand.Intn(900000)+100000)
	}

	code := &models.QRCode{
		Slug:           slug,
		DestinationURL: "https://example.com/landing",
		Title:          utils.ToPtr("Test QR Code"),
		Tags:           []string{"test"},
	}

	if err := tf.DB.DB.Create(code).Error; err != nil {
		return nil, fmt.Errorf("failed to create test QR code: %w", err)
	}
	return code, nil
}

// CreateTestVersion creates a version for the given code
func (tf *TestFixtures) CreateTestVersion(qrCodeID uint, name string, favorite bool) (*models.QRVersion, error) {
	if name == "" {
		name = fmt.Sprintf("Version %04d", rand.Intn(9000)+1000)
	}

	version := &models.QRVersion{
		QRCodeID: qrCodeID,
		Name:     name,
		StyleConfig: models.StyleConfig{
			"foreground": "#000000",
			"background": "#FFFFFF",
		},
		IsFavorite: favorite,
	}

	if err := tf.DB.DB.Create(version).Error; err != nil {
		return nil, fmt.Errorf("failed to create test version: %w", err)
	}

	if favorite {
		if err := tf.DB.DB.Model(&models.QRCode{}).Where("id = ?", qrCodeID).
			Update("favorite_version_id", version.ID).Error; err != nil {
			return nil, fmt.Errorf("failed to point code at favorite version: %w", err)
		}
	}

	return version, nil
}

// CreateTestQRCodeWithVersions creates a code with n versions, the first one favorite
func (tf *TestFixtures) CreateTestQRCodeWithVersions(slug string, n int) (*models.QRCode, []*models.QRVersion, error) {
	code, err := tf.CreateTestQRCode(slug)
	if err != nil {
		return nil, nil, err
	}

	versions := make([]*models.QRVersion, 0, n)
	for i := 0; i < n; i++ {
		version, err := tf.CreateTestVersion(code.ID, fmt.Sprintf("Version %d", i+1), i == 0)
		if err != nil {
			return nil, nil, err
		}
		versions = append(versions, version)
	}
	return code, versions, nil
}
