package utils

import "net/http"

// ResponseCode is the business code carried in the response envelope
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	// Client errors
	CodeInvalidParam ResponseCode = 10001
	CodeUnauthorized ResponseCode = 10002
	CodeForbidden    ResponseCode = 10003
	CodeNotFound     ResponseCode = 10004
	CodeRateLimit    ResponseCode = 10005
	CodeTimeout      ResponseCode = 10006

	// Domain errors
	CodeCustomerNotFound ResponseCode = 20001
	CodeMessageNotFound  ResponseCode = 20002

	// System errors
	CodeInternalError ResponseCode = 50001
	CodeDatabaseError ResponseCode = 50003
	CodeBusError      ResponseCode = 50005
)

var codeStatus = map[ResponseCode]int{
	CodeSuccess:          http.StatusOK,
	CodeInvalidParam:     http.StatusBadRequest,
	CodeUnauthorized:     http.StatusUnauthorized,
	CodeForbidden:        http.StatusForbidden,
	CodeNotFound:         http.StatusNotFound,
	CodeRateLimit:        http.StatusTooManyRequests,
	CodeTimeout:          http.StatusGatewayTimeout,
	CodeCustomerNotFound: http.StatusNotFound,
	CodeMessageNotFound:  http.StatusNotFound,
	CodeBusError:         http.StatusServiceUnavailable,
}

// HTTPStatus maps a business code to its HTTP status. Unmapped codes are 500.
func (c ResponseCode) HTTPStatus() int {
	if status, ok := codeStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}
