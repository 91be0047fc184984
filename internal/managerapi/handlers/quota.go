package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/managerapi/handlers/dto"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
)

type QuotaHandler struct {
	ledger quota.Ledger
	store  recipients.Store
}

func NewQuotaHandler(ledger quota.Ledger, store recipients.Store) *QuotaHandler {
	return &QuotaHandler{ledger: ledger, store: store}
}

// GetQuota handles GET /quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "GetQuota")
	acct, err := h.ledger.Get(logCtx, accountID(c))
	if err != nil {
		respondError(c, logCtx, err, "Failed to retrieve quota")
		return
	}
	c.JSON(http.StatusOK, dto.NewQuotaResponse(acct))
}

// TopUp handles POST /quota/topup
func (h *QuotaHandler) TopUp(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "TopUpQuota")

	var req dto.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	amount := decimal.Zero
	if req.Amount != "" {
		var err error
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount format: must be a valid number"})
			return
		}
		if amount.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount: must not be negative"})
			return
		}
	}

	slog.InfoContext(logCtx, "Processing quota top-up", slog.Int64("units", req.Units), slog.String("amount", amount.String()))
	acct, err := h.ledger.TopUp(logCtx, quota.TopUpRequest{AccountID: accountID(c), Units: req.Units, Amount: amount, Note: req.Note})
	if err != nil {
		respondError(c, logCtx, err, "Failed to top up quota")
		return
	}
	c.JSON(http.StatusOK, dto.NewQuotaResponse(acct))
}

// SetThreshold handles PUT /quota/threshold
func (h *QuotaHandler) SetThreshold(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "SetLowQuotaThreshold")

	var req dto.ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := h.ledger.SetLowQuotaThreshold(logCtx, accountID(c), *req.Threshold); err != nil {
		respondError(c, logCtx, err, "Failed to update threshold")
		return
	}
	c.JSON(http.StatusOK, gin.H{"low_quota_threshold": *req.Threshold})
}

// History handles GET /quota/history
func (h *QuotaHandler) History(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "QuotaHistory")
	limit, offset := parsePagination(c)

	entries, err := h.ledger.History(logCtx, accountID(c), limit, offset)
	if err != nil {
		respondError(c, logCtx, err, "Failed to retrieve quota history")
		return
	}
	resp := make([]dto.QuotaEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = dto.QuotaEntryResponse{
			ID:        e.ID,
			Units:     e.Units,
			Amount:    e.Amount.StringFixed(4),
			Kind:      e.Kind,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, dto.PaginatedListResponse{
		Data:       resp,
		Pagination: dto.PaginationResponse{Total: int64(len(resp)), Limit: limit, Offset: offset},
	})
}

// DashboardStats handles GET /dashboard/stats. An account without a quota
// row reports zero quota.
func (h *QuotaHandler) DashboardStats(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "DashboardStats")

	stats, err := h.store.Stats(logCtx, accountID(c))
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to read contact stats", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read dashboard stats"})
		return
	}
	acct, err := h.ledger.Get(logCtx, accountID(c))
	if err != nil && !errors.Is(err, quota.ErrAccountNotFound) {
		respondError(c, logCtx, err, "Failed to read dashboard stats")
		return
	}
	q := dto.NewQuotaResponse(acct)
	c.JSON(http.StatusOK, dto.DashboardStatsResponse{
		Summary: dto.DashboardSummary{
			ContactsTotal:  stats.Total,
			Sent:           stats.Sent,
			Failed:         stats.Failed,
			Pending:        stats.Pending,
			Sending:        stats.Sending,
			RemainingQuota: q.RemainingQuota,
		},
		Quota: q,
	})
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Health handles GET /health
func Health(check HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := check(c.Request.Context()); err != nil {
			slog.WarnContext(c.Request.Context(), "Health check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
