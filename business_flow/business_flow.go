package businessflow

import (
	"strings"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/utils"
)

// ClientMetadata carries request-scoped client information into the flows
type ClientMetadata struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id"`
}

// NewClientMetadata creates client metadata from request information
func NewClientMetadata(ip, userAgent string) *ClientMetadata {
	return &ClientMetadata{IP: ip, UserAgent: userAgent}
}

// PublicURL joins the configured public base with a slug
func PublicURL(base, slug string) string {
	return strings.TrimRight(base, "/") + "/" + slug
}

func toQRCodeResponse(code *models.QRCode, basePublicURL string, versionCount int64) dto.QRCodeResponse {
	tags := []string(code.Tags)
	if tags == nil {
		tags = []string{}
	}
	return dto.QRCodeResponse{
		ID:                code.ID,
		Slug:              code.Slug,
		PublicURL:         PublicURL(basePublicURL, code.Slug),
		DestinationURL:    code.DestinationURL,
		Title:             code.Title,
		Description:       code.Description,
		Tags:              tags,
		ClickCount:        code.ClickCount,
		FavoriteVersionID: code.FavoriteVersionID,
		VersionCount:      versionCount,
		CreatedAt:         utils.TimeToRFC3339(code.CreatedAt),
		UpdatedAt:         utils.TimeToRFC3339(code.UpdatedAt),
	}
}

func toQRVersionResponse(v *models.QRVersion) dto.QRVersionResponse {
	resp := dto.QRVersionResponse{
		ID:          v.ID,
		QRCodeID:    v.QRCodeID,
		Name:        v.Name,
		StyleConfig: map[string]any(v.StyleConfig),
		IsFavorite:  v.IsFavorite,
		HasImage:    v.ImagePath != "",
		HasLogo:     v.LogoPath != nil && *v.LogoPath != "",
		CreatedAt:   utils.TimeToRFC3339(v.CreatedAt),
		UpdatedAt:   utils.TimeToRFC3339(v.UpdatedAt),
	}
	if resp.StyleConfig == nil {
		resp.StyleConfig = map[string]any{}
	}
	if resp.HasImage {
		resp.ImageURL = versionArtifactURL(v.ID, "image")
		resp.PreviewURL = versionArtifactURL(v.ID, "preview")
	}
	return resp
}

func versionArtifactURL(versionID uint, kind string) string {
	return "/api/v1/versions/" + utils.UintToString(versionID) + "/" + kind
}
