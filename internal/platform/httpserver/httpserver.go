// Package httpserver bundles the service's Fiber conventions (error
// handler, recover/logging middleware, a health endpoint)
// into a standalone factory. It is the one surface in this repo where
// inbound provider webhooks and the rider-status read side are exposed.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
)

// Validate is the shared request-body validator every handler's input
// DTO is checked against via its `validate:"..."` struct tags.
var Validate = validator.New()

// New builds the Fiber app every HTTP-facing bootstrap wires routes
// into: panic recovery, CORS, request logging and the apperr-aware
// error handler below.
func New(logger log.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "bodaboda-insure-core",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(requestLogger(logger))

	app.Get("/health", Ping)

	return app
}

// Ping answers the liveness/readiness probe every component in this
// family exposes at /health.
func Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func requestLogger(logger log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logger.Infof("%s %s -> %d (%s)", c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))

		return err
	}
}

// errorResponse is the JSON body every error the handler chain
// produces is rendered as.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler maps the apperr taxonomy to HTTP status codes, the same
// classification apperr.ValidateBusinessError/IsRetryableConflict use
// internally, so transport and business-rule errors share one source
// of truth.
func errorHandler(logger log.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			validationErr    apperr.ValidationError
			notFoundErr       apperr.NotFoundError
			conflictErr       apperr.ConflictError
			preconditionErr   apperr.PreconditionFailedError
			transientErr      apperr.TransientUpstreamError
			permanentErr      apperr.PermanentUpstreamError
			fiberErr          *fiber.Error
		)

		switch {
		case errors.As(err, &validationErr):
			return c.Status(http.StatusBadRequest).JSON(errorResponse{Code: validationErr.Code, Message: validationErr.Message})
		case errors.As(err, &notFoundErr):
			return c.Status(http.StatusNotFound).JSON(errorResponse{Code: "NOT_FOUND", Message: err.Error()})
		case errors.As(err, &conflictErr):
			return c.Status(http.StatusConflict).JSON(errorResponse{Code: conflictErr.Code, Message: err.Error()})
		case errors.As(err, &preconditionErr):
			return c.Status(http.StatusPreconditionFailed).JSON(errorResponse{Code: preconditionErr.Code, Message: preconditionErr.Message})
		case errors.As(err, &transientErr):
			return c.Status(http.StatusBadGateway).JSON(errorResponse{Code: "UPSTREAM_UNAVAILABLE", Message: err.Error()})
		case errors.As(err, &permanentErr):
			return c.Status(http.StatusUnprocessableEntity).JSON(errorResponse{Code: permanentErr.Category, Message: err.Error()})
		case errors.As(err, &fiberErr):
			return c.Status(fiberErr.Code).JSON(errorResponse{Code: "HTTP_ERROR", Message: fiberErr.Message})
		default:
			logger.Errorf("unhandled error serving %s %s: %v", c.Method(), c.Path(), err)
			return c.Status(http.StatusInternalServerError).JSON(errorResponse{Code: "INTERNAL", Message: "internal server error"})
		}
	}
}

// Shutdown gracefully drains app within the given context's deadline.
func Shutdown(ctx context.Context, app *fiber.App) error {
	return app.ShutdownWithContext(ctx)
}
