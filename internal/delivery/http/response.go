package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"stockfolio/internal/domain"
)

// Response is the JSON envelope of every API reply
type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SuccessResponse sends a success response
func SuccessResponse(c echo.Context, data interface{}) error {
	return SuccessMessageResponse(c, "", data)
}

// SuccessMessageResponse sends a success response with a message
func SuccessMessageResponse(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response tagged with the request id, so a
// client report can be matched to the request log
func ErrorResponse(c echo.Context, statusCode int, message string, err interface{}) error {
	return c.JSON(statusCode, Response{
		Status:    "error",
		Message:   message,
		Error:     err,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

// BadRequestResponse sends a 400
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message, nil)
}

// UnauthorizedResponse sends a 401
func UnauthorizedResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusUnauthorized, message, nil)
}

// InternalServerErrorResponse sends a 500 carrying the error text
func InternalServerErrorResponse(c echo.Context, message string, err error) error {
	var detail interface{}
	if err != nil {
		detail = err.Error()
	}
	return ErrorResponse(c, http.StatusInternalServerError, message, detail)
}

// DomainErrorResponse maps the domain sentinel errors to a status code;
// anything else is a 500 with fallback as the message
func DomainErrorResponse(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPriceUnavailable):
		return ErrorResponse(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, domain.ErrSyncInProgress):
		return ErrorResponse(c, http.StatusConflict, "A sync is running for this account, retry shortly", nil)
	case errors.Is(err, domain.ErrUnknownBroker):
		return BadRequestResponse(c, err.Error())
	}
	return InternalServerErrorResponse(c, fallback, err)
}
