package model

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RootResponse describes the service information returned by the root endpoint.
//
// swagger:model
type RootResponse struct {
	// The name of the service
	Service string `json:"service"`

	// The service title
	Title string `json:"title"`

	// The service version
	Version string `json:"version"`
}

// APIVersionResponse describes the information returned by the root endpoint of an API version.
//
// swagger:model
type APIVersionResponse struct {
	// The version of the API
	Version string `json:"version"`
}

// ResponseBody is the envelope used for every JSON response body.
type ResponseBody struct {
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse builds a success response body.
func SuccessResponse(result any, _ int) ResponseBody {
	return ResponseBody{Status: StatusSuccess, Result: result}
}

// Success sends a success response with the given result.
func Success(ctx echo.Context, result any, status int) error {
	return ctx.JSON(status, SuccessResponse(result, status))
}

// SuccessMessage sends a success response containing only a message.
func SuccessMessage(ctx echo.Context, msg string, status int) error {
	return ctx.JSON(status, ResponseBody{Status: StatusSuccess, Result: map[string]string{"message": msg}})
}

// Error sends an error response.
func Error(ctx echo.Context, msg string, status int) error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return ctx.JSON(status, ResponseBody{Status: StatusError, Error: msg})
}

// ErrorWithDetails sends an error response that carries structured details for the caller.
func ErrorWithDetails(ctx echo.Context, msg string, details any, status int) error {
	return ctx.JSON(status, ResponseBody{Status: StatusError, Error: msg, Details: details})
}
