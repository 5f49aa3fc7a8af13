package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// QRCodeHandlerInterface defines the contract for QR code handlers
type QRCodeHandlerInterface interface {
	CreateCode(c fiber.Ctx) error
	ListCodes(c fiber.Ctx) error
	GetCode(c fiber.Ctx) error
	UpdateCode(c fiber.Ctx) error
	DeleteCode(c fiber.Ctx) error
	RenameSlug(c fiber.Ctx) error
	CheckSlug(c fiber.Ctx) error
	ResetClicks(c fiber.Ctx) error
	ExportCodes(c fiber.Ctx) error
}

// QRCodeHandler handles QR code management HTTP requests
type QRCodeHandler struct {
	codeFlow  businessflow.QRCodeFlow
	validator *validator.Validate
}

func NewQRCodeHandler(codeFlow businessflow.QRCodeFlow) QRCodeHandlerInterface {
	return &QRCodeHandler{
		codeFlow:  codeFlow,
		validator: validator.New(),
	}
}

func (h *QRCodeHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: &dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *QRCodeHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// slugErrorResponse maps the shared slug failure modes; returns false when
// err is none of them.
func (h *QRCodeHandler) slugErrorResponse(c fiber.Ctx, err error) (bool, error) {
	if businessflow.IsSlugInvalid(err) {
		return true, h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "SLUG_INVALID", nil)
	}
	if businessflow.IsSlugReserved(err) {
		return true, h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "SLUG_RESERVED", nil)
	}
	var conflict *businessflow.SlugConflictError
	if errors.As(err, &conflict) {
		return true, h.ErrorResponse(c, fiber.StatusConflict, "Slug is already taken", "SLUG_TAKEN", fiber.Map{
			"suggestions": conflict.Suggestions,
		})
	}
	if businessflow.IsSlugTaken(err) {
		return true, h.ErrorResponse(c, fiber.StatusConflict, "Slug is already taken", "SLUG_TAKEN", nil)
	}
	return false, nil
}

// CreateCode handles QR code creation
// @Summary Create QR Code
// @Description Create a new QR code with a unique slug and destination URL
// @Tags QRCodes
// @Accept json
// @Produce json
// @Param request body dto.CreateQRCodeRequest true "QR code creation data"
// @Success 201 {object} dto.APIResponse{data=dto.QRCodeResponse} "QR code created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 409 {object} dto.APIResponse "Slug already taken"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes [post]
func (h *QRCodeHandler) CreateCode(c fiber.Ctx) error {
	var req dto.CreateQRCodeRequest
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

	result, err := h.codeFlow.CreateCode(h.createRequestContext(c, "/api/v1/codes"), &req)
	if err != nil {
		if handled, respErr := h.slugErrorResponse(c, err); handled {
			return respErr
		}
		if businessflow.IsDestinationInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "DESTINATION_INVALID", nil)
		}

		log.Println("QR code creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "QR code creation failed", "QR_CODE_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "QR code created successfully", result)
}

// ListCodes handles QR code listing
// @Summary List QR Codes
// @Description List QR codes with optional tag filter and pagination
// @Tags QRCodes
// @Produce json
// @Param tag query string false "Filter by tag"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.QRCodeListResponse} "QR codes retrieved successfully"
// @Failure 400 {object} dto.APIResponse "Invalid pagination parameters"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes [get]
func (h *QRCodeHandler) ListCodes(c fiber.Ctx) error {
	req := dto.QRCodeListRequest{}
	if tag := c.Query("tag"); tag != "" {
		req.Tag = &tag
	}
	if pageStr := c.Query("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil {
			req.Page = page
		}
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		if pageSize, err := strconv.Atoi(pageSizeStr); err == nil {
			req.PageSize = pageSize
		}
	}

	result, err := h.codeFlow.ListCodes(h.createRequestContext(c, "/api/v1/codes"), &req)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION", nil)
		}
		log.Println("QR code listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list QR codes", "QR_CODE_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "QR codes retrieved successfully", result)
}

// GetCode handles single QR code retrieval
// @Summary Get QR Code
// @Description Retrieve one QR code by its id
// @Tags QRCodes
// @Produce json
// @Param id path int true "QR code ID"
// @Success 200 {object} dto.APIResponse{data=dto.QRCodeResponse} "QR code retrieved successfully"
// @Failure 404 {object} dto.APIResponse "QR code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id} [get]
func (h *QRCodeHandler) GetCode(c fiber.Ctx) error {
	id, ok := h.paramID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	result, err := h.codeFlow.GetCode(h.createRequestContext(c, "/api/v1/codes/:id"), id)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		log.Println("QR code retrieval failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve QR code", "QR_CODE_GET_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "QR code retrieved successfully", result)
}

// UpdateCode handles QR code metadata updates
// @Summary Update QR Code
// @Description Update destination URL, title, description or tags of a QR code
// @Tags QRCodes
// @Accept json
// @Produce json
// @Param id path int true "QR code ID"
// @Param request body dto.UpdateQRCodeRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.QRCodeResponse} "QR code updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "QR code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id} [patch]
func (h *QRCodeHandler) UpdateCode(c fiber.Ctx) error {
	id, ok := h.paramID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	var req dto.UpdateQRCodeRequest
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

	result, err := h.codeFlow.UpdateCode(h.createRequestContext(c, "/api/v1/codes/:id"), id, &req)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		if businessflow.IsDestinationInvalid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "DESTINATION_INVALID", nil)
		}
		log.Println("QR code update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update QR code", "QR_CODE_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "QR code updated successfully", result)
}

// DeleteCode handles QR code deletion
// @Summary Delete QR Code
// @Description Delete a QR code together with all its versions and artifacts
// @Tags QRCodes
// @Produce json
// @Param id path int true "QR code ID"
// @Success 200 {object} dto.APIResponse "QR code deleted successfully"
// @Failure 404 {object} dto.APIResponse "QR code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id} [delete]
func (h *QRCodeHandler) DeleteCode(c fiber.Ctx) error {
	id, ok := h.paramID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	if err := h.codeFlow.DeleteCode(h.createRequestContext(c, "/api/v1/codes/:id"), id); err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		log.Println("QR code deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete QR code", "QR_CODE_DELETE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "QR code deleted successfully", nil)
}

// RenameSlug handles the slug rename workflow
// @Summary Rename Slug
// @Description Change the public slug of a QR code; codes with recorded clicks require confirmed=true
// @Tags QRCodes
// @Accept json
// @Produce json
// @Param id path int true "QR code ID"
// @Param request body dto.RenameSlugRequest true "New slug and confirmation flag"
// @Success 200 {object} dto.APIResponse{data=dto.RenameSlugResponse} "Slug renamed successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "QR code not found"
// @Failure 409 {object} dto.APIResponse "Slug taken or confirmation required"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id}/rename [post]
func (h *QRCodeHandler) RenameSlug(c fiber.Ctx) error {
	id, ok := h.paramID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	var req dto.RenameSlugRequest
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

	result, err := h.codeFlow.RenameSlug(h.createRequestContext(c, "/api/v1/codes/:id/rename"), id, &req)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		if handled, respErr := h.slugErrorResponse(c, err); handled {
			return respErr
		}
		var confirmation *businessflow.RenameConfirmationError
		if errors.As(err, &confirmation) {
			return h.ErrorResponse(c, fiber.StatusConflict,
				"This QR code has recorded clicks; renaming changes its public URL. Resubmit with confirmed=true to proceed.",
				"NEEDS_CONFIRMATION", fiber.Map{"click_count": confirmation.ClickCount})
		}
		log.Println("Slug rename failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to rename slug", "SLUG_RENAME_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Slug renamed successfully", result)
}

// CheckSlug handles slug availability probes
// @Summary Check Slug
// @Description Check validity and availability of a candidate slug
// @Tags QRCodes
// @Produce json
// @Param slug query string true "Candidate slug"
// @Param exclude_id query int false "QR code id to exclude (for edits)"
// @Success 200 {object} dto.APIResponse{data=dto.CheckSlugResponse} "Slug checked successfully"
// @Failure 400 {object} dto.APIResponse "Missing slug parameter"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/check-slug [get]
func (h *QRCodeHandler) CheckSlug(c fiber.Ctx) error {
	req := dto.CheckSlugRequest{Slug: c.Query("slug")}
	if excludeStr := c.Query("exclude_id"); excludeStr != "" {
		if excludeID, err := strconv.ParseUint(excludeStr, 10, 32); err == nil {
			req.ExcludeID = uint(excludeID)
		}
	}
	if req.Slug == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "slug query parameter is required", "INVALID_REQUEST", nil)
	}

	result, err := h.codeFlow.CheckSlug(h.createRequestContext(c, "/api/v1/codes/check-slug"), &req)
	if err != nil {
		log.Println("Slug check failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check slug", "SLUG_CHECK_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Slug checked successfully", result)
}

// ResetClicks handles click counter resets
// @Summary Reset Clicks
// @Description Reset the click counter of a QR code to zero
// @Tags QRCodes
// @Produce json
// @Param id path int true "QR code ID"
// @Success 200 {object} dto.APIResponse{data=dto.QRCodeResponse} "Clicks reset successfully"
// @Failure 404 {object} dto.APIResponse "QR code not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/{id}/reset-clicks [post]
func (h *QRCodeHandler) ResetClicks(c fiber.Ctx) error {
	id, ok := h.paramID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid QR code id", "INVALID_ID", nil)
	}

	result, err := h.codeFlow.ResetClicks(h.createRequestContext(c, "/api/v1/codes/:id/reset-clicks"), id)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "QR code not found", "QR_CODE_NOT_FOUND", nil)
		}
		log.Println("Click reset failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reset clicks", "CLICK_RESET_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Clicks reset successfully", result)
}

// ExportCodes handles xlsx export of all QR codes
// @Summary Export QR Codes
// @Description Download all QR codes with click statistics as an xlsx workbook
// @Tags QRCodes
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file "xlsx workbook"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/codes/export [get]
func (h *QRCodeHandler) ExportCodes(c fiber.Ctx) error {
	fileName, content, err := h.codeFlow.ExportCodes(h.createRequestContextWithTimeout(c, "/api/v1/codes/export", 60*time.Second))
	if err != nil {
		log.Println("QR code export failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export QR codes", "QR_CODE_EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	return c.Send(content)
}

func (h *QRCodeHandler) paramID(c fiber.Ctx) (uint, bool) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *QRCodeHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 10*time.Second)
}

func (h *QRCodeHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
