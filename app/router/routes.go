// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	"github.com/amirphl/Kusanagi/app/handlers"
	"github.com/amirphl/Kusanagi/app/middleware"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	cfg             *config.ProductionConfig
	codeHandler     handlers.QRCodeHandlerInterface
	versionHandler  handlers.QRVersionHandlerInterface
	redirectHandler handlers.RedirectHandlerInterface
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	codeHandler handlers.QRCodeHandlerInterface,
	versionHandler handlers.QRVersionHandlerInterface,
	redirectHandler handlers.RedirectHandlerInterface,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Kusanagi API",
		ServerHeader: "Kusanagi",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ProxyHeader:  cfg.Server.ProxyHeader,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		cfg:             cfg,
		codeHandler:     codeHandler,
		versionHandler:  versionHandler,
		redirectHandler: redirectHandler,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.PrometheusPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting, no API key)
	api.Get("/health", r.healthCheck)

	// General rate limiting on management routes
	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	api.Use(r.apiKeyMiddleware)

	// QR code management
	codes := api.Group("/codes")
	codes.Post("/", r.codeHandler.CreateCode)
	codes.Get("/", r.codeHandler.ListCodes)
	codes.Get("/check-slug", r.codeHandler.CheckSlug)
	codes.Get("/export", r.codeHandler.ExportCodes)
	codes.Get("/:id", r.codeHandler.GetCode)
	codes.Patch("/:id", r.codeHandler.UpdateCode)
	codes.Delete("/:id", r.codeHandler.DeleteCode)
	codes.Post("/:id/rename", r.codeHandler.RenameSlug)
	codes.Post("/:id/reset-clicks", r.codeHandler.ResetClicks)
	codes.Get("/:id/versions", r.versionHandler.ListVersions)
	codes.Post("/:id/versions", r.versionHandler.CreateVersion)

	// Version management
	versions := api.Group("/versions")
	versions.Get("/:id", r.versionHandler.GetVersion)
	versions.Patch("/:id", r.versionHandler.UpdateVersion)
	versions.Delete("/:id", r.versionHandler.DeleteVersion)
	versions.Post("/:id/favorite", r.versionHandler.SetFavorite)
	versions.Post("/:id/image", r.versionHandler.UploadImage)
	versions.Get("/:id/image", r.versionHandler.GetImage)
	versions.Post("/:id/logo", r.versionHandler.UploadLogo)
	versions.Get("/:id/preview", r.versionHandler.GetPreview)

	// Public scan path with its own, higher limit. Registered last among
	// GET routes so /api and /metrics never shadow as slugs.
	r.app.Get("/:slug", r.redirectHandler.Redirect, limiter.New(limiter.Config{
		Max:        r.cfg.Security.RedirectRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimitReached,
	}))

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XDNSPrefetchControl:   "off",
		XDownloadOptions:      "noopen",
		XPermittedCrossDomain: "none",
	}))

	// CORS middleware with production settings
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			// Image and preview payloads are already compressed formats
			Next: func(c fiber.Ctx) bool {
				path := c.Path()
				return strings.HasSuffix(path, "/image") || strings.HasSuffix(path, "/preview")
			},
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/api/v1/health"
			},
		}))
	}

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// apiKeyMiddleware validates the management API key when configured.
// The public redirect path and health check never require a key.
func (r *FiberRouter) apiKeyMiddleware(c fiber.Ctx) error {
	if !r.cfg.Security.RequireAPIKey {
		return c.Next()
	}

	apiKey := c.Get(r.cfg.Security.APIKeyHeader)
	if apiKey == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "API key is required",
			Error: &dto.ErrorDetail{
				Code: "MISSING_API_KEY",
			},
		})
	}

	for _, validKey := range r.cfg.Security.AllowedAPIKeys {
		if apiKey == validKey {
			return c.Next()
		}
	}

	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: "Invalid API key",
		Error: &dto.ErrorDetail{
			Code: "INVALID_API_KEY",
		},
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   "1.0.0",
			"service":   "kusanagi-api",
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: &dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: &dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error %d: %v", code, err)

	requestID := c.Locals("requestid")
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: fmt.Sprintf("Request failed with status %d", code),
		Error: &dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	return uuid.NewString()
}
