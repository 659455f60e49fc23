// Package response provides the JSON envelope of every API response.
package response

import (
	"time"

	"mailbox_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// Response is the standard API response structure.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func envelope(c *fiber.Ctx, success bool) Response {
	requestID, _ := c.Locals("request_id").(string)
	return Response{
		Success:   success,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// OK returns a successful response.
func OK(c *fiber.Ctx, data any) error {
	r := envelope(c, true)
	r.Data = data
	return c.JSON(r)
}

// Accepted returns a 202 response for work that continues in the background.
func Accepted(c *fiber.Ctx, data any) error {
	r := envelope(c, true)
	r.Data = data
	return c.Status(fiber.StatusAccepted).JSON(r)
}

// Error returns an error response.
func Error(c *fiber.Ctx, status int, code, message string) error {
	r := envelope(c, false)
	r.Error = &ErrorInfo{Code: code, Message: message}
	return c.Status(status).JSON(r)
}

// AppError renders an *apperr.AppError.
func AppError(c *fiber.Ctx, e *apperr.AppError) error {
	r := envelope(c, false)
	r.Error = &ErrorInfo{Code: e.Code, Message: e.Message, Details: e.Details}
	return c.Status(e.Status).JSON(r)
}

// BadRequest returns a 400 bad request response.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, apperr.CodeBadRequest, message)
}

// Unauthorized returns a 401 unauthorized response.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, apperr.CodeUnauthorized, message)
}
