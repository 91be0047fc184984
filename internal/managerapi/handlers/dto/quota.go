package dto

import (
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
)

type QuotaResponse struct {
	TotalQuota     int64 `json:"total_quota"`
	SentQuota      int64 `json:"sent_quota"`
	RemainingQuota int64 `json:"remaining_quota"`
}

func NewQuotaResponse(a quota.Account) QuotaResponse {
	return QuotaResponse{TotalQuota: a.TotalQuota, SentQuota: a.UsedQuota, RemainingQuota: a.Remaining()}
}

// TopUpRequest is the body of POST /quota/topup. Amount is a decimal string.
type TopUpRequest struct {
	Units  int64  `json:"units" binding:"required,gt=0"`
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

type ThresholdRequest struct {
	Threshold *int64 `json:"threshold" binding:"required,gte=0"`
}

type QuotaEntryResponse struct {
	ID        int64     `json:"id"`
	Units     int64     `json:"units"`
	Amount    string    `json:"amount"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardSummary struct {
	ContactsTotal  int64 `json:"contacts_total"`
	Sent           int64 `json:"sent"`
	Failed         int64 `json:"failed"`
	Pending        int64 `json:"pending"`
	Sending        int64 `json:"sending"`
	RemainingQuota int64 `json:"remaining_quota"`
}

type DashboardStatsResponse struct {
	Summary DashboardSummary `json:"summary"`
	Quota   QuotaResponse    `json:"quota"`
}
