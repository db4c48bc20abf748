package feed

import "github.com/gofiber/fiber/v2"

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StatusError is an error with a pre-assigned HTTP status. Errors without
// one are treated as internal errors at the boundary.
type StatusError struct {
	Code    int
	Message string
	Data    []FieldError
}

func (e *StatusError) Error() string {
	return e.Message
}

func errValidation(message string, data ...FieldError) *StatusError {
	return &StatusError{Code: fiber.StatusUnprocessableEntity, Message: message, Data: data}
}

func errForbidden() *StatusError {
	return &StatusError{Code: fiber.StatusForbidden, Message: "Not authorized !"}
}

func errPostNotFound() *StatusError {
	return &StatusError{Code: fiber.StatusNotFound, Message: "No post with the id was found"}
}
