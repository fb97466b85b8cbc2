package errx

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Response is the JSON body written for every failed request.
type Response struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// FiberErrorHandler renders errors returned by handlers. *Error values keep
// their code and status, fiber errors keep their status, everything else
// becomes an opaque 500.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var e *Error
	if errors.As(err, &e) {
		status := e.HTTPStatus
		if status == 0 {
			status = typeToHTTPStatus(e.Type)
		}
		return c.Status(status).JSON(Response{
			Error:   string(e.Type),
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(Response{
			Error:   "HTTP_ERROR",
			Code:    "HTTP_ERROR",
			Message: fe.Message,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(Response{
		Error:   string(TypeInternal),
		Code:    string(TypeInternal),
		Message: "Internal server error",
	})
}
