package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/proxima/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errLocation maps an acquisition failure onto a status and a location_* code.
func errLocation(c *fiber.Ctx, err error) error {
	var lerr *domain.LocationError
	if !errors.As(err, &lerr) {
		return errInternal(c, err.Error())
	}

	status := fiber.StatusServiceUnavailable
	switch lerr.Code {
	case domain.LocationDenied:
		status = fiber.StatusForbidden
	case domain.LocationTimeout:
		status = fiber.StatusGatewayTimeout
	case domain.LocationUnsupported:
		status = fiber.StatusNotImplemented
	}
	return newError(c, status, "location_"+lerr.Code.String(), lerr.Error())
}
