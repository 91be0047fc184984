package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linxGnu/gosmpp/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
)

type stubClient struct {
	calls atomic.Int64
	err   error
}

func (s *stubClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return SendResult{}, s.err
	}
	return SendResult{MessageID: "m-1", Segments: 1}, nil
}
func (s *stubClient) Name() string                { return "stub" }
func (s *stubClient) Close(context.Context) error { return nil }

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute, VolumeThreshold: 2})
	cb.now = func() time.Time { return now }

	stub := &stubClient{err: NewError(errormapper.ErrorCodeGatewayUnavailable, errors.New("down"))}
	c := WithCircuitBreaker(stub, cb)
	ctx := context.Background()

	for range 2 {
		_, err := c.Send(ctx, "201000000000", "hi")
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := c.Send(ctx, "201000000000", "hi")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, errormapper.ErrorCodeGatewayCircuitOpen, errormapper.ReasonFromError(err))
	assert.Equal(t, int64(2), stub.calls.Load(), "open circuit must not reach the provider")

	now = now.Add(2 * time.Minute)
	stub.err = nil
	_, err = c.Send(ctx, "201000000000", "hi")
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerIgnoresRejections(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, VolumeThreshold: 1})
	c := WithCircuitBreaker(&stubClient{err: NewError(errormapper.ErrorCodeGatewayRejected, errors.New("bad number"))}, cb)
	for range 5 {
		_, _ = c.Send(context.Background(), "201000000000", "hi")
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 0.001)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitedPassesThrough(t *testing.T) {
	stub := &stubClient{}
	c := NewRateLimited(stub, 1000, 5)
	for range 5 {
		_, err := c.Send(context.Background(), "201000000000", "hi")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), stub.calls.Load())
	assert.Same(t, stub, NewRateLimited(stub, 0, 0), "zero rps disables limiting")
}

func TestHTTPClientSend(t *testing.T) {
	var got HTTPSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "201999999999" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.To == "201888888888" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(HTTPSendResponse{MessageID: "abc"})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{URL: srv.URL, APIKey: "secret", SenderID: "SYA"})
	require.NoError(t, err)

	res, err := c.Send(context.Background(), "201000000000", "hello")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.MessageID)
	assert.Equal(t, "SYA", got.SenderID)

	_, err = c.Send(context.Background(), "201999999999", "hello")
	assert.Equal(t, errormapper.ErrorCodeGatewayRejected, errormapper.ReasonFromError(err))

	_, err = c.Send(context.Background(), "201888888888", "hello")
	assert.Equal(t, errormapper.ErrorCodeGatewayUnavailable, errormapper.ReasonFromError(err))
}

func TestHTTPClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, "201000000000", "hello")
	assert.Equal(t, errormapper.ErrorCodeGatewayTimeout, errormapper.ReasonFromError(err))
}

type fakeMessages struct {
	params *twilioApi.CreateMessageParams
	err    error
	block  chan struct{}
}

func (f *fakeMessages) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioClient(t *testing.T) {
	fake := &fakeMessages{}
	c := &TwilioClient{api: fake, from: "+15005550006"}

	res, err := c.Send(context.Background(), "201000000000", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", res.MessageID)
	assert.Equal(t, "+201000000000", *fake.params.To)

	fake.err = &twilioclient.TwilioRestError{Status: http.StatusBadRequest, Code: 21211, Message: "invalid To"}
	_, err = c.Send(context.Background(), "201000000000", "hello")
	assert.Equal(t, errormapper.ErrorCodeGatewayRejected, errormapper.ReasonFromError(err))

	fake.err = &twilioclient.TwilioRestError{Status: http.StatusTooManyRequests}
	_, err = c.Send(context.Background(), "201000000000", "hello")
	assert.Equal(t, errormapper.ErrorCodeGatewayRateLimited, errormapper.ReasonFromError(err))
}

func TestTwilioClientAbandonsOnDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := &TwilioClient{api: &fakeMessages{block: block}, from: "+1"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, "201000000000", "hello")
	assert.Equal(t, errormapper.ErrorCodeGatewayTimeout, errormapper.ReasonFromError(err))
}

func TestConstructorsValidateConfig(t *testing.T) {
	_, err := NewTwilioClient(TwilioConfig{})
	assert.Error(t, err)
	_, err = NewSMPPClient(SMPPConfig{}, nil)
	assert.Error(t, err)
}

func TestCircuitBreakerReportsRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, VolumeThreshold: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return now }
	c := WithCircuitBreaker(&stubClient{err: NewError(errormapper.ErrorCodeGatewayUnavailable, errors.New("down"))}, cb)

	ra, ok := c.(RetryAfterer)
	require.True(t, ok)
	assert.Zero(t, ra.RetryAfter())

	_, _ = c.Send(context.Background(), "201000000000", "hi")
	require.Equal(t, CircuitOpen, cb.State())
	now = now.Add(20 * time.Second)
	assert.Equal(t, 40*time.Second, ra.RetryAfter())

	now = now.Add(time.Hour)
	assert.Zero(t, ra.RetryAfter())
}

func TestDeferredClassification(t *testing.T) {
	assert.True(t, Deferred(ErrCircuitOpen))
	assert.True(t, Deferred(NewError(errormapper.ErrorCodeGatewayRateLimited, errors.New("429"))))
	assert.False(t, Deferred(NewError(errormapper.ErrorCodeGatewayUnavailable, errors.New("down"))))
	assert.False(t, Deferred(NewError(errormapper.ErrorCodeGatewayTimeout, context.DeadlineExceeded)))
	assert.False(t, Deferred(errors.New("plain")))
	assert.False(t, Deferred(nil))
}

type deadlineClient struct {
	sawDeadline atomic.Int64
}

func (d *deadlineClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	if _, ok := ctx.Deadline(); ok {
		d.sawDeadline.Add(1)
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayTimeout, err)
	}
	return SendResult{Segments: 1}, nil
}
func (d *deadlineClient) Name() string                { return "deadline" }
func (d *deadlineClient) Close(context.Context) error { return nil }

func TestSendTimeoutStartsAfterRateLimiterWait(t *testing.T) {
	inner := &deadlineClient{}
	c := NewRateLimited(WithSendTimeout(inner), 20, 1)
	ctx := ContextWithSendTimeout(context.Background(), 10*time.Millisecond)

	// the second and third sends wait about 50ms each for a token, well past
	// the send timeout
	for range 3 {
		_, err := c.Send(ctx, "201000000000", "hi")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), inner.sawDeadline.Load())
}

func newTestSMPPClient(t *testing.T) *SMPPClient {
	t.Helper()
	c, err := NewSMPPClient(SMPPConfig{Host: "localhost", Port: 2775, SystemID: "sys", SenderID: "SYA"}, segmenter.NewDefaultSegmenter())
	require.NoError(t, err)
	return c
}

func TestSMPPMultipartSegmentsCarryConcatUDH(t *testing.T) {
	c := newTestSMPPClient(t)

	submits, err := c.buildSubmits("201001234567", strings.Repeat("م", 150))
	require.NoError(t, err)
	require.Len(t, submits, 3)

	_, _, firstRef, found := submits[0].Message.UDH().GetConcatInfo()
	require.True(t, found)
	for i, p := range submits {
		assert.NotZero(t, p.EsmClass&data.SM_UDH_GSM, "segment %d", i+1)
		assert.Equal(t, data.UCS2.DataCoding(), p.Message.Encoding().DataCoding())

		total, part, ref, found := p.Message.UDH().GetConcatInfo()
		require.True(t, found, "segment %d", i+1)
		assert.Equal(t, byte(3), total)
		assert.Equal(t, byte(i+1), part)
		assert.Equal(t, firstRef, ref)

		udh, err := p.Message.UDH().MarshalBinary()
		require.NoError(t, err)
		body, err := p.Message.GetMessageData()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(udh)+len(body), 140, "segment %d exceeds one SMS", i+1)
	}

	next, err := c.buildSubmits("201001234567", strings.Repeat("a", 100))
	require.NoError(t, err)
	require.Len(t, next, 2)
	_, _, nextRef, _ := next[0].Message.UDH().GetConcatInfo()
	assert.NotEqual(t, firstRef, nextRef)
}

func TestSMPPSingleSegmentHasNoUDH(t *testing.T) {
	c := newTestSMPPClient(t)

	submits, err := c.buildSubmits("201001234567", strings.Repeat("م", 70))
	require.NoError(t, err)
	require.Len(t, submits, 1)
	assert.Zero(t, submits[0].EsmClass&data.SM_UDH_GSM)
	assert.Empty(t, submits[0].Message.UDH())
}
