package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
)

// LogClient accepts every message and only logs it. It is the default for
// local runs and the memory backend.
type LogClient struct {
	logger *slog.Logger
}

func NewLogClient(logger *slog.Logger) *LogClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogClient{logger: logger}
}

func (c *LogClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	res := SendResult{MessageID: uuid.NewString(), Segments: segmenter.Units(text)}
	c.logger.InfoContext(logging.ContextWithGateway(ctx, c.Name()), "SMS accepted by log gateway",
		slog.String("to", phone),
		slog.String("message_id", res.MessageID),
		slog.Int("segments", res.Segments),
	)
	return res, nil
}

func (c *LogClient) Name() string                { return "log" }
func (c *LogClient) Close(context.Context) error { return nil }

var _ Client = (*LogClient)(nil)
