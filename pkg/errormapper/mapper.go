package errormapper

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Coded is implemented by errors that carry one of the internal codes.
type Coded interface {
	error
	Code() string
}

var internalToHTTP = map[string]int{
	ErrorCodeInvalidMSISDN:     http.StatusBadRequest,
	ErrorCodeValidationFailure: http.StatusBadRequest,
	ErrorCodeEmptyMessage:      http.StatusBadRequest,
	ErrorCodeInsufficientQuota: http.StatusPaymentRequired, // Fits semantically
	ErrorCodeAccountNotFound:   http.StatusNotFound,
	ErrorCodeAlreadyRunning:    http.StatusConflict,
	ErrorCodeJobActive:         http.StatusConflict,
	ErrorCodeGatewayRejected:   http.StatusBadGateway,
	ErrorCodeSystemError:       http.StatusInternalServerError,
	ErrorCodeDatabaseError:     http.StatusInternalServerError,
}

// HTTPStatus translates an internal code to the HTTP status returned by the API.
func HTTPStatus(internalCode string) int {
	internalCode = strings.ToUpper(internalCode)
	if status, ok := internalToHTTP[internalCode]; ok {
		return status
	}
	slog.Debug("No specific HTTP mapping found for error code, returning 500",
		slog.String("internal_code", internalCode),
	)
	return http.StatusInternalServerError
}

// ReasonFromError classifies a failed gateway attempt into the structured
// reason stored on the recipient row.
func ReasonFromError(err error) string {
	if err == nil {
		return ""
	}
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCodeGatewayTimeout
		}
		return ErrorCodeGatewayUnavailable
	}
	return ErrorCodeSystemError
}
