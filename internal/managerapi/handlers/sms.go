package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SYA-Group/sya-sms-dispatch/internal/dispatch"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/managerapi/handlers/dto"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
)

type SMSHandler struct {
	svc   *dispatch.Service
	store recipients.Store
}

func NewSMSHandler(svc *dispatch.Service, store recipients.Store) *SMSHandler {
	return &SMSHandler{svc: svc, store: store}
}

// Send handles POST /sms/send
func (h *SMSHandler) Send(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "SendSMS")

	var req dto.SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	snap, err := h.svc.Start(logCtx, accountID(c), req.Message)
	if err != nil {
		respondError(c, logCtx, err, "Failed to start SMS sending")
		return
	}
	c.JSON(http.StatusOK, startResponse(snap))
}

// SearchSend handles POST /search/send. The search results join the
// account's recipients under the same lease the job then runs with. The job
// covers every pending recipient of the account; Backlog counts those the
// search did not add.
func (h *SMSHandler) SearchSend(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "SearchSend")

	var req dto.SearchSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	acct := accountID(c)
	var res recipients.InsertResult
	snap, err := h.svc.StartWith(logCtx, acct, req.Message, func(ctx context.Context) error {
		var err error
		res, err = h.store.BulkInsert(ctx, acct, req.Records)
		if err != nil {
			return fmt.Errorf("failed to save search results: %w", err)
		}
		return nil
	})
	if err != nil {
		respondError(c, logCtx, err, "Failed to start SMS sending")
		return
	}
	backlog := max(0, snap.Total-int64(res.Inserted))
	resp := startResponse(snap)
	resp.Inserted = &res.Inserted
	resp.Backlog = &backlog
	if backlog > 0 {
		resp.Message = fmt.Sprintf("SMS sending started, including %d recipients already pending", backlog)
	}
	c.JSON(http.StatusOK, resp)
}

func startResponse(snap dispatch.Snapshot) dto.StartResponse {
	return dto.StartResponse{
		Status:          "started",
		Message:         "SMS sending started",
		JobID:           snap.JobID,
		UnitsPerMessage: snap.UnitsPerMessage,
		Total:           snap.Total,
	}
}

// Stop handles POST /sms/stop. It succeeds even when nothing is running.
func (h *SMSHandler) Stop(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "StopSMS")
	if _, err := h.svc.Stop(logCtx, accountID(c)); err != nil {
		respondError(c, logCtx, err, "Failed to stop SMS sending")
		return
	}
	c.JSON(http.StatusOK, dto.StopResponse{Status: "stopped", Message: "SMS sending stopped"})
}

// Progress handles GET /sms/progress
func (h *SMSHandler) Progress(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "SMSProgress")
	snap, err := h.svc.Progress(logCtx, accountID(c))
	if err != nil {
		respondError(c, logCtx, err, "Failed to read progress")
		return
	}
	c.JSON(http.StatusOK, snap)
}

// LastMessage handles GET /sms/last_message
func (h *SMSHandler) LastMessage(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "LastMessage")
	msg, _, err := h.svc.LastMessage(logCtx, accountID(c))
	if err != nil {
		slog.WarnContext(logCtx, "Failed to read last message", slog.Any("error", err))
	}
	c.JSON(http.StatusOK, dto.LastMessageResponse{Message: msg})
}

// ResendAll handles POST /upload/contacts/resend_all
func (h *SMSHandler) ResendAll(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "ResendAll")
	n, err := h.svc.ResendAll(logCtx, accountID(c))
	if err != nil {
		respondError(c, logCtx, err, "Failed to reset contacts")
		return
	}
	c.JSON(http.StatusOK, dto.ResendResponse{Status: "ok", Message: "All contacts reset to pending", Count: n})
}
