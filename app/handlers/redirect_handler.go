package handlers

import (
	"context"
	"log"
	"time"

	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/gofiber/fiber/v3"
)

// RedirectHandlerInterface defines the contract for the public redirect endpoint
type RedirectHandlerInterface interface {
	Redirect(c fiber.Ctx) error
}

// RedirectHandler serves the public scan path. It speaks plain text, not the
// API envelope; scanners follow Location headers, they do not parse JSON.
type RedirectHandler struct {
	visitFlow businessflow.VisitFlow
	timeout   time.Duration
}

func NewRedirectHandler(visitFlow businessflow.VisitFlow, timeout time.Duration) RedirectHandlerInterface {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedirectHandler{visitFlow: visitFlow, timeout: timeout}
}

// Redirect resolves a slug and issues a permanent redirect
// @Summary Resolve QR Slug
// @Tags Redirect
// @Param slug path string true "Public slug"
// @Success 301 {string} string "Redirect to destination"
// @Failure 404 {string} string "Not found"
// @Router /{slug} [get]
func (h *RedirectHandler) Redirect(c fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	destination, err := h.visitFlow.Resolve(h.createRequestContext(c, "/"+slug), slug, metadata)
	if err != nil {
		if businessflow.IsQRCodeNotFound(err) {
			return c.Status(fiber.StatusNotFound).SendString("not found")
		}
		log.Println("Slug resolution failed", err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	return c.Redirect().Status(fiber.StatusMovedPermanently).To(destination)
}

func (h *RedirectHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, h.timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
