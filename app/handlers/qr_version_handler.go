package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// QRVersionHandlerInterface defines the contract for QR version handlers
type QRVersionHandlerInterface interface {
	ListVersions(c fiber.Ctx) error
	CreateVersion(c fiber.Ctx) error
	GetVersion(c fiber.Ctx) error
	UpdateVersion(c fiber.Ctx) error
	SetFavorite(c fiber.Ctx) error
	DeleteVersion(c fiber.Ctx) error
	UploadImage(c fiber.Ctx) error
	UploadLogo(c fiber.Ctx) error
	GetImage(c fiber.Ctx) error
	GetPreview(c fiber.Ctx) error
}

// QRVersionHandler handles version-related HTTP requests
type QRVersionHandler struct {
	versionFlow businessflow.QRVersionFlow
	validator   *validator.Validate
}

func NewQRVersionHandler(versionFlow businessflow.QRVersionFlow) QRVersionHandlerInterface {
	return &QRVersionHandler{
		versionFlow: versionFlow,
		validator:   validator.New(),
	}
}

func (h *QRVersionHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: &dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *QRVersionHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ListVersions handles version listing for one code
// @Summary List Versions
// @Description List every version of a QR code in creation order
// @Tags Versions
// @Produce json
// @Param id path int true "QR code ID"
// @Success 200 {object} dto.APIResponse{data=dto.QRVersionListResponse} "Versions retrieved successfully"
// @Failure 404 {object} dto.APIResponse "QR code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id}/versions [get]
func (h *QRVersionHandler) ListVersions(c fiber.Ctx) error {
	codeID, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	result, err := h.versionFlow.ListVersions(h.createRequestContext(c, "/api/v1/codes/:id/versions"), codeID)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		log.Println("Version listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list versions", "VERSION_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Versions retrieved successfully", result)
}

// CreateVersion handles version creation
// @Summary Create Version
// @Description Add a styled version to a QR code; style comes from the payload, a clone source, or defaults
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path int true "QR code ID"
// @Param request body dto.CreateVersionRequest true "Version creation data"
// @Success 201 {object} dto.APIResponse{data=dto.QRVersionResponse} "Version created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or clone source mismatch"
// @Failure 404 {object} dto.APIResponse "QR code or clone source not found"
// @Failure 409 {object} dto.APIResponse "Version limit reached"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id}/versions [post]
func (h *QRVersionHandler) CreateVersion(c fiber.Ctx) error {
	codeID, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	var req dto.CreateVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.versionFlow.CreateVersion(h.createRequestContext(c, "/api/v1/codes/:id/versions"), codeID, &req)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		if businessflow.IsVersionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Clone source version not found", "VERSION_NOT_FOUND", nil)
		}
		if businessflow.IsCloneSourceNotOwned(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "CLONE_SOURCE_NOT_OWNED", nil)
		}
		if businessflow.IsVersionLimitExceeded(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, err.Error(), "VERSION_LIMIT_EXCEEDED", nil)
		}
		log.Println("Version creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create version", "VERSION_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Version created successfully", result)
}

// GetVersion handles single version retrieval
// @Summary Get Version
// @Description Retrieve one version by its id
// @Tags Versions
// @Produce json
// @Param id path int true "Version ID"
// @Success 200 {object} dto.APIResponse{data=dto.QRVersionResponse} "Version retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Version not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id} [get]
func (h *QRVersionHandler) GetVersion(c fiber.Ctx) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	result, err := h.versionFlow.GetVersion(h.createRequestContext(c, "/api/v1/versions/:id"), id)
	if err != nil {
		if businessflow.IsVersionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Version not found", "VERSION_NOT_FOUND", nil)
		}
		log.Println("Version retrieval failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve version", "VERSION_GET_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Version retrieved successfully", result)
}

// UpdateVersion handles version updates
// @Summary Update Version
// @Description Update the name or style configuration of a version
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path int true "Version ID"
// @Param request body dto.UpdateVersionRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.QRVersionResponse} "Version updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Version not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id} [patch]
func (h *QRVersionHandler) UpdateVersion(c fiber.Ctx) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	var req dto.UpdateVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.versionFlow.UpdateVersion(h.createRequestContext(c, "/api/v1/versions/:id"), id, &req)
	if err != nil {
		if businessflow.IsVersionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Version not found", "VERSION_NOT_FOUND", nil)
		}
		log.Println("Version update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update version", "VERSION_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Version updated successfully", result)
}

// SetFavorite handles favorite promotion
// @Summary Set Favorite Version
// @Description Promote a version to be the single favorite of its QR code
// @Tags Versions
// @Produce json
// @Param id path int true "Version ID"
// @Success 200 {object} dto.APIResponse{data=dto.QRVersionResponse} "Favorite set successfully"
// @Failure 404 {object} dto.APIResponse "Version not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id}/favorite [post]
func (h *QRVersionHandler) SetFavorite(c fiber.Ctx) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	result, err := h.versionFlow.SetFavorite(h.createRequestContext(c, "/api/v1/versions/:id/favorite"), id)
	if err != nil {
		if businessflow.IsVersionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Version not found", "VERSION_NOT_FOUND", nil)
		}
		log.Println("Set favorite failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to set favorite", "SET_FAVORITE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Favorite set successfully", result)
}

// DeleteVersion handles guarded version deletion
// @Summary Delete Version
// @Description Delete a version; deleting the favorite requires new_favorite_id, and the last version cannot be deleted
// @Tags Versions
// @Produce json
// @Param id path int true "Version ID"
// @Param new_favorite_id query int false "Replacement favorite when deleting the favorite version"
// @Success 200 {object} dto.APIResponse "Version deleted successfully"
// @Failure 400 {object} dto.APIResponse "Replacement favorite invalid"
// @Failure 404 {object} dto.APIResponse "Version not found"
// @Failure 409 {object} dto.APIResponse "Last version or replacement favorite required"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id} [delete]
func (h *QRVersionHandler) DeleteVersion(c fiber.Ctx) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	var newFavoriteID *uint
	if raw := c.Query("new_favorite_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || parsed == 0 {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid new_favorite_id", "INVALID_ID", nil)
		}
		v := uint(parsed)
		newFavoriteID = &v
	}

	err := h.versionFlow.DeleteVersion(h.createRequestContext(c, "/api/v1/versions/:id"), id, newFavoriteID)
	if err != nil {
		if businessflow.IsVersionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Version not found", "VERSION_NOT_FOUND", nil)
		}
		if businessflow.IsLastVersion(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, err.Error(), "LAST_VERSION", nil)
		}
		var required *businessflow.NewFavoriteRequiredError
		if errors.As(err, &required) {
			return h.ErrorResponse(c, fiber.StatusConflict,
				"This is the favorite version; choose a replacement favorite via new_favorite_id",
				"REQUIRES_NEW_FAVORITE", fiber.Map{"candidates": required.Candidates})
		}
		if businessflow.IsFavoriteNotOwned(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "FAVORITE_NOT_OWNED", nil)
		}
		log.Println("Version deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete version", "VERSION_DELETE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Version deleted successfully", nil)
}

// UploadImage handles rendered image uploads
// @Summary Upload Version Image
// @Description Upload the rendered PNG or JPEG image for a version
// @Tags Versions
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Version ID"
// @Param file formData file true "PNG or JPEG image"
// @Success 200 {object} dto.APIResponse{data=dto.QRVersionResponse} "Image uploaded successfully"
// @Failure 400 {object} dto.APIResponse "Missing file or unsupported content type"
// @Failure 404 {object} dto.APIResponse "Version not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id}/image [post]
func (h *QRVersionHandler) UploadImage(c fiber.Ctx) error {
	return h.upload(c, "/api/v1/versions/:id/image", h.versionFlow.UploadImage)
}

// UploadLogo handles logo uploads
// @Summary Upload Version Logo
// @Description Upload the center logo PNG or JPEG for a version
// @Tags Versions
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Version ID"
// @Param file formData file true "PNG or JPEG image"
// @Success 200 {object} dto.APIResponse{data=dto.QRVersionResponse} "Logo uploaded successfully"
// @Failure 400 {object} dto.APIResponse "Missing file or unsupported content type"
// @Failure 404 {object} dto.APIResponse "Version not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id}/logo [post]
func (h *QRVersionHandler) UploadLogo(c fiber.Ctx) error {
	return h.upload(c, "/api/v1/versions/:id/logo", h.versionFlow.UploadLogo)
}

// GetImage serves the stored rendered image
// @Summary Get Version Image
// @Description Download the stored rendered image of a version
// @Tags Versions
// @Produce image/png
// @Param id path int true "Version ID"
// @Success 200 {file} file "Image bytes"
// @Failure 404 {object} dto.APIResponse "Version or image not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id}/image [get]
func (h *QRVersionHandler) GetImage(c fiber.Ctx) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	content, contentType, err := h.versionFlow.GetImage(h.createRequestContext(c, "/api/v1/versions/:id/image"), id)
	if err != nil {
		if businessflow.IsVersionNotFound(err) || businessflow.IsArtifactNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Image not found", "IMAGE_NOT_FOUND", nil)
		}
		log.Println("Image retrieval failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve image", "IMAGE_GET_FAILED", nil)
	}

	c.Set("Content-Type", contentType)
	return c.Send(content)
}

// GetPreview serves a bounded JPEG thumbnail of the stored image
// @Summary Get Version Preview
// @Description Download a thumbnail of the stored rendered image
// @Tags Versions
// @Produce image/jpeg
// @Param id path int true "Version ID"
// @Success 200 {file} file "JPEG thumbnail"
// @Failure 404 {object} dto.APIResponse "Version or image not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/versions/{id}/preview [get]
func (h *QRVersionHandler) GetPreview(c fiber.Ctx) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	content, err := h.versionFlow.GetPreview(h.createRequestContext(c, "/api/v1/versions/:id/preview"), id)
	if err != nil {
		if businessflow.IsVersionNotFound(err) || businessflow.IsArtifactNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Image not found", "IMAGE_NOT_FOUND", nil)
		}
		log.Println("Preview generation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate preview", "PREVIEW_FAILED", nil)
	}

	c.Set("Content-Type", "image/jpeg")
	return c.Send(content)
}

func (h *QRVersionHandler) upload(c fiber.Ctx, endpoint string, fn func(context.Context, uint, io.Reader) (*dto.QRVersionResponse, error)) error {
	id, ok := h.paramID(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid version id", "INVALID_ID", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "file is required", "INVALID_FILE", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid file", "INVALID_FILE", err.Error())
	}
	defer file.Close()

	result, err := fn(h.createRequestContext(c, endpoint), id, file)
	if err != nil {
		if businessflow.IsVersionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Version not found", "VERSION_NOT_FOUND", nil)
		}
		if businessflow.IsArtifactTypeUnsupported(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "UNSUPPORTED_MEDIA", nil)
		}
		if businessflow.IsArtifactTooLarge(err) {
			return h.ErrorResponse(c, fiber.StatusRequestEntityTooLarge, err.Error(), "UPLOAD_TOO_LARGE", nil)
		}
		log.Println("Artifact upload failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to upload file", "UPLOAD_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "File uploaded successfully", result)
}

func (h *QRVersionHandler) paramID(c fiber.Ctx, name string) (uint, bool) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *QRVersionHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 10*time.Second)
}

func (h *QRVersionHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
