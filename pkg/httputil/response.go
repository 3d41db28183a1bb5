package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Code      int         `json:"code,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Status:  "error",
		Code:    code,
		Message: message,
	}
}

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// ErrorStatus resolves the response status and client message for err.
// Errors that are not AppErrors never leak their text.
func ErrorStatus(err error) (int, *Response) {
	if appErr, ok := errors.As(err); ok {
		status := appErr.Code.HTTPStatus()
		msg := appErr.Message
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
		return status, NewErrorResponse(int(appErr.Code), msg)
	}
	return http.StatusInternalServerError, NewErrorResponse(int(errors.ErrInternal), "internal server error")
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	status, resp := ErrorStatus(err)
	resp.RequestID = c.GetString("request_id")
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}
