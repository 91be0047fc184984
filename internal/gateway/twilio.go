package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string // E.164 sender, e.g. "+15005550006"
}

// messageCreator is the slice of the Twilio REST API this client uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	api  messageCreator
	from string
}

func NewTwilioClient(cfg TwilioConfig) (*TwilioClient, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, errors.New("twilio from number must be provided")
	}
	slog.Debug("Twilio client config loaded", "from", cfg.From)

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioClient{api: client.Api, from: cfg.From}, nil
}

// Send runs the blocking SDK call in a goroutine so ctx can abandon it. The
// SDK has no context support; an abandoned call may still be delivered.
func (c *TwilioClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	logCtx := logging.ContextWithGateway(ctx, c.Name())

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + phone)
	params.SetFrom(c.from)
	params.SetBody(text)

	type outcome struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := c.api.CreateMessage(params)
		done <- outcome{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayTimeout, ctx.Err())
	case out := <-done:
		if out.err != nil {
			slog.WarnContext(logCtx, "Twilio CreateMessage failed", slog.String("to", phone), slog.Any("error", out.err))
			return SendResult{}, classifyTwilioError(out.err)
		}
		res := SendResult{Segments: segmenter.Units(text)}
		if out.msg != nil && out.msg.Sid != nil {
			res.MessageID = *out.msg.Sid
		}
		slog.DebugContext(logCtx, "Twilio message sent", slog.String("to", phone), slog.String("sid", res.MessageID))
		return res, nil
	}
}

func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		code := errormapper.ErrorCodeGatewayRejected
		switch {
		case restErr.Status == http.StatusTooManyRequests:
			code = errormapper.ErrorCodeGatewayRateLimited
		case restErr.Status >= 500:
			code = errormapper.ErrorCodeGatewayUnavailable
		}
		return NewError(code, fmt.Errorf("twilio %d: %s", restErr.Code, restErr.Message))
	}
	return NewError(errormapper.ErrorCodeGatewayUnavailable, err)
}

func (c *TwilioClient) Name() string                { return "twilio" }
func (c *TwilioClient) Close(context.Context) error { return nil }

var _ Client = (*TwilioClient)(nil)
