package codes

// Recipient Status Codes
const (
	RecipientPending = "pending"
	RecipientSending = "sending"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
)

// RecipientStatuses lists every valid recipient status, in display order.
var RecipientStatuses = []string{RecipientPending, RecipientSending, RecipientSent, RecipientFailed}

// IsRecipientStatus reports whether s is a known recipient status.
func IsRecipientStatus(s string) bool {
	for _, st := range RecipientStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Dispatch Job Status Codes
const (
	JobIdle     = "idle"
	JobRunning  = "running"
	JobStopping = "stopping"
	JobStopped  = "stopped"
)

// Legacy progress wording polled by the console
const (
	ProgressSending = "sending"
	ProgressIdle    = "idle"
)

// Job Stop Reasons
const (
	StopCompleted      = "completed"
	StopUserRequested  = "user_requested"
	StopQuotaExhausted = "quota_exhausted"
	StopError          = "error"
	StopShutdown       = "shutdown"
)

// Upload Row Outcomes
const (
	RowInserted  = "inserted"
	RowDuplicate = "duplicate"
	RowInvalid   = "invalid_format"
)

// Quota Audit Kinds
const (
	QuotaTopUp    = "topup"
	QuotaReversal = "reversal"
)
