package errormapper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedErr struct{ code string }

func (e codedErr) Error() string { return "coded: " + e.code }
func (e codedErr) Code() string  { return e.code }

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

var _ net.Error = timeoutErr{}

func TestReasonFromError(t *testing.T) {
	assert.Equal(t, "", ReasonFromError(nil))
	assert.Equal(t, ErrorCodeGatewayRejected, ReasonFromError(fmt.Errorf("submit: %w", codedErr{ErrorCodeGatewayRejected})))
	assert.Equal(t, ErrorCodeGatewayTimeout, ReasonFromError(fmt.Errorf("send: %w", context.DeadlineExceeded)))
	assert.Equal(t, ErrorCodeGatewayTimeout, ReasonFromError(timeoutErr{timeout: true}))
	assert.Equal(t, ErrorCodeGatewayUnavailable, ReasonFromError(timeoutErr{}))
	assert.Equal(t, ErrorCodeSystemError, ReasonFromError(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrorCodeAlreadyRunning))
	assert.Equal(t, http.StatusPaymentRequired, HTTPStatus("insuf_quota"))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrorCodeAccountNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus("whatever"))
}
