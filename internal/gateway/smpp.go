package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linxGnu/gosmpp"
	"github.com/linxGnu/gosmpp/data"
	"github.com/linxGnu/gosmpp/pdu"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/smpphelper"
)

const (
	smppStatusDisconnected = "disconnected"
	smppStatusConnecting   = "connecting"
	smppStatusBound        = "bound"
)

type SMPPConfig struct {
	Host           string
	Port           int
	SystemID       string
	Password       string `json:"-"`
	SystemType     string
	SenderID       string
	EnquireLink    time.Duration
	RequestTimeout time.Duration
	MaxWindowSize  uint
	SourceAddrTON  byte
	SourceAddrNPI  byte
	DestAddrTON    byte
	DestAddrNPI    byte
}

// submitOutcome is delivered to the goroutine waiting on a SubmitSM.
type submitOutcome struct {
	messageID string
	err       error
}

// SMPPClient submits messages over one bound transceiver session. Every
// SubmitSM is correlated with its response by sequence number.
type SMPPClient struct {
	config    SMPPConfig
	segmenter segmenter.Segmenter

	connMu  sync.Mutex
	session *gosmpp.Session
	status  atomic.Value

	pending sync.Map // map[int32]chan submitOutcome
	refs    smpphelper.RefCounter
}

func NewSMPPClient(cfg SMPPConfig, seg segmenter.Segmenter) (*SMPPClient, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.SystemID == "" {
		return nil, errors.New("missing required SMPP config fields (Host, Port, SystemID)")
	}
	if cfg.EnquireLink <= 0 {
		cfg.EnquireLink = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxWindowSize == 0 {
		cfg.MaxWindowSize = 10
	}
	if cfg.SourceAddrTON == 0 {
		cfg.SourceAddrTON = 5 // alphanumeric
	}
	if cfg.DestAddrTON == 0 {
		cfg.DestAddrTON = 1 // international
		cfg.DestAddrNPI = 1 // E.164
	}
	c := &SMPPClient{config: cfg, segmenter: seg}
	c.status.Store(smppStatusDisconnected)
	return c, nil
}

// ConnectAndBind opens the session. gosmpp rebinds on its own after a drop.
func (c *SMPPClient) ConnectAndBind(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.session != nil {
		return errors.New("session already active")
	}
	c.status.Store(smppStatusConnecting)
	slog.InfoContext(ctx, "Attempting to connect and bind SMPP session",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
		slog.String("system_id", c.config.SystemID),
	)

	auth := gosmpp.Auth{
		SMSC:       fmt.Sprintf("%s:%d", c.config.Host, c.config.Port),
		SystemID:   c.config.SystemID,
		Password:   c.config.Password,
		SystemType: c.config.SystemType,
	}
	settings := gosmpp.Settings{
		EnquireLink:  c.config.EnquireLink,
		ReadTimeout:  c.config.RequestTimeout + 5*time.Second,
		WriteTimeout: c.config.RequestTimeout,
		WindowedRequestTracking: &gosmpp.WindowedRequestTracking{
			MaxWindowSize:         uint8(c.config.MaxWindowSize),
			PduExpireTimeOut:      c.config.RequestTimeout,
			ExpireCheckTimer:      time.Second,
			OnReceivedPduRequest:  c.handleReceivedPduRequest,
			OnExpectedPduResponse: c.handleExpectedPduResponse,
			OnExpiredPduRequest:   c.handleExpiredPduRequest,
			OnClosePduRequest:     c.handleClosePduRequest,
		},
		OnSubmitError: func(p pdu.PDU, err error) {
			c.complete(p.GetSequenceNumber(), submitOutcome{err: NewError(errormapper.ErrorCodeGatewayUnavailable, err)})
		},
		OnReceivingError: func(err error) {
			slog.Error("SMPP receiving error", slog.Any("error", err))
		},
		OnRebindingError: func(err error) {
			slog.Error("SMPP rebinding error", slog.Any("error", err))
		},
		OnClosed: func(state gosmpp.State) {
			slog.Warn("SMPP session closed", slog.String("state", state.String()))
			c.status.Store(smppStatusDisconnected)
		},
	}

	sess, err := gosmpp.NewSession(gosmpp.TRXConnector(gosmpp.NonTLSDialer, auth), settings, 5*time.Second)
	if err != nil {
		c.status.Store(smppStatusDisconnected)
		return fmt.Errorf("gosmpp.NewSession failed: %w", err)
	}
	c.session = sess
	c.status.Store(smppStatusBound)
	slog.InfoContext(ctx, "SMPP session established and bound")
	return nil
}

// Send submits every segment and waits for all responses. It succeeds only
// when every segment was accepted.
func (c *SMPPClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	logCtx := logging.ContextWithGateway(ctx, c.Name())

	c.connMu.Lock()
	sess := c.session
	c.connMu.Unlock()
	if sess == nil || c.Status() != smppStatusBound {
		return SendResult{}, ErrNotBound
	}

	submits, err := c.buildSubmits(phone, text)
	if err != nil {
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayRejected, err)
	}

	var firstID string
	for i, p := range submits {
		seq := p.GetSequenceNumber()
		ch := make(chan submitOutcome, 1)
		c.pending.Store(seq, ch)

		if err := sess.Transceiver().Submit(p); err != nil {
			c.pending.Delete(seq)
			slog.WarnContext(logCtx, "Failed to submit segment PDU", slog.Any("error", err), slog.Int("seqn", i+1))
			return SendResult{}, NewError(errormapper.ErrorCodeGatewayUnavailable, err)
		}

		select {
		case <-ctx.Done():
			c.pending.Delete(seq)
			return SendResult{}, NewError(errormapper.ErrorCodeGatewayTimeout, ctx.Err())
		case out := <-ch:
			if out.err != nil {
				return SendResult{}, out.err
			}
			if i == 0 {
				firstID = out.messageID
			}
		}
	}
	return SendResult{MessageID: firstID, Segments: len(submits)}, nil
}

// buildSubmits returns one SubmitSM per segment. Parts of a multipart
// message share a reference and carry the concatenation UDH.
func (c *SMPPClient) buildSubmits(phone, text string) ([]*pdu.SubmitSM, error) {
	segments, requiresUCS2 := c.segmenter.Split(text)
	if len(segments) == 0 {
		return nil, errors.New("segmentation resulted in zero segments")
	}
	if len(segments) > 255 {
		return nil, fmt.Errorf("message needs %d segments, at most 255 fit a concatenation header", len(segments))
	}

	submits := make([]*pdu.SubmitSM, 0, len(segments))
	var ref uint8
	if len(segments) > 1 {
		ref = c.refs.Next()
	}
	for i, content := range segments {
		p, err := c.buildSubmitSM(phone, content, requiresUCS2)
		if err != nil {
			return nil, err
		}
		if len(segments) > 1 {
			p.Message.SetUDH(smpphelper.ConcatUDH(ref, uint8(len(segments)), uint8(i+1)))
			p.EsmClass |= data.SM_UDH_GSM
		}
		submits = append(submits, p)
	}
	return submits, nil
}

func (c *SMPPClient) buildSubmitSM(phone, content string, requiresUCS2 bool) (*pdu.SubmitSM, error) {
	p := pdu.NewSubmitSM().(*pdu.SubmitSM)

	srcAddr := pdu.NewAddress()
	srcAddr.SetTon(c.config.SourceAddrTON)
	srcAddr.SetNpi(c.config.SourceAddrNPI)
	if err := srcAddr.SetAddress(c.config.SenderID); err != nil {
		return nil, fmt.Errorf("invalid source address %q: %w", c.config.SenderID, err)
	}
	p.SourceAddr = srcAddr

	destAddr := pdu.NewAddress()
	destAddr.SetTon(c.config.DestAddrTON)
	destAddr.SetNpi(c.config.DestAddrNPI)
	if err := destAddr.SetAddress(phone); err != nil {
		return nil, fmt.Errorf("invalid destination address %q: %w", phone, err)
	}
	p.DestAddr = destAddr

	var coding data.Encoding = data.GSM7BIT
	if requiresUCS2 {
		coding = data.UCS2
	}
	if err := p.Message.SetMessageWithEncoding(content, coding); err != nil {
		return nil, fmt.Errorf("failed to set message content: %w", err)
	}
	p.ProtocolID = 0
	p.RegisteredDelivery = 0
	p.ReplaceIfPresentFlag = 0
	p.EsmClass = 0
	return p, nil
}

func (c *SMPPClient) complete(seq int32, out submitOutcome) {
	v, ok := c.pending.LoadAndDelete(seq)
	if !ok {
		return
	}
	v.(chan submitOutcome) <- out
}

func (c *SMPPClient) handleReceivedPduRequest(p pdu.PDU) (pdu.PDU, bool) {
	switch pd := p.(type) {
	case *pdu.EnquireLink:
		return pd.GetResponse(), false
	case *pdu.DeliverSM:
		// Delivery receipts are acknowledged but not tracked.
		return pd.GetResponse(), false
	case *pdu.Unbind:
		slog.Info("Received Unbind request from SMSC")
		c.status.Store(smppStatusDisconnected)
		return pd.GetResponse(), true
	}
	return nil, false
}

func (c *SMPPClient) handleExpectedPduResponse(response gosmpp.Response) {
	resp, ok := response.PDU.(*pdu.SubmitSMResp)
	if !ok {
		return
	}
	seq := response.OriginalRequest.PDU.GetSequenceNumber()
	if status := resp.CommandStatus; status != data.ESME_ROK {
		c.complete(seq, submitOutcome{err: NewError(errormapper.ErrorCodeGatewayRejected,
			fmt.Errorf("submit_sm rejected with status 0x%08X", uint32(status)))})
		return
	}
	c.complete(seq, submitOutcome{messageID: resp.MessageID})
}

func (c *SMPPClient) handleExpiredPduRequest(p pdu.PDU) bool {
	switch p.(type) {
	case *pdu.SubmitSM:
		c.complete(p.GetSequenceNumber(), submitOutcome{err: NewError(errormapper.ErrorCodeGatewayTimeout, errors.New("submit_sm response not received"))})
		return false
	case *pdu.EnquireLink:
		slog.Error("EnquireLink expired, connection likely stale")
		return true
	}
	return false
}

func (c *SMPPClient) handleClosePduRequest(p pdu.PDU) {
	c.complete(p.GetSequenceNumber(), submitOutcome{err: NewError(errormapper.ErrorCodeGatewayUnavailable, errors.New("session closed before response"))})
}

func (c *SMPPClient) Status() string {
	return c.status.Load().(string)
}

func (c *SMPPClient) Name() string { return "smpp" }

func (c *SMPPClient) Close(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.status.Store(smppStatusDisconnected)
	if err != nil {
		slog.WarnContext(ctx, "Error during SMPP session close", slog.Any("error", err))
	}
	return err
}

var _ Client = (*SMPPClient)(nil)
