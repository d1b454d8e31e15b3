package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response standard response structure
type Response struct {
	Code      ResponseCode `json:"code"`
	Message   string       `json:"message"`
	Data      interface{}  `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Success writes a 200 response carrying data
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// Error writes an error response with the status mapped from code and aborts the chain
func Error(c *gin.Context, code ResponseCode, message string) {
	c.AbortWithStatusJSON(code.HTTPStatus(), Response{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// Fail writes err. An AppError keeps its code and message, anything else is a 500.
func Fail(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		Error(c, appErr.Code, appErr.Message)
		return
	}
	Error(c, CodeInternalError, "internal server error")
}

// ListResponse wraps a bounded list
type ListResponse struct {
	List  interface{} `json:"list"`
	Count int         `json:"count"`
	Limit int         `json:"limit"`
}

// SuccessList writes a 200 list response
func SuccessList(c *gin.Context, list interface{}, count, limit int) {
	Success(c, ListResponse{List: list, Count: count, Limit: limit})
}
