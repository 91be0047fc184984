package dispatch

import (
	"errors"

	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrAlreadyRunning = errors.New("a dispatch job is already running for this account")
	ErrJobActive      = errors.New("a dispatch job is active for this account")
)

// Code maps a service error to its errormapper code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return errormapper.ErrorCodeEmptyMessage
	case errors.Is(err, ErrAlreadyRunning):
		return errormapper.ErrorCodeAlreadyRunning
	case errors.Is(err, ErrJobActive):
		return errormapper.ErrorCodeJobActive
	case errors.Is(err, quota.ErrInsufficientQuota):
		return errormapper.ErrorCodeInsufficientQuota
	case errors.Is(err, quota.ErrAccountNotFound):
		return errormapper.ErrorCodeAccountNotFound
	default:
		return errormapper.ErrorCodeSystemError
	}
}
