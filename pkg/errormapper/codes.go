package errormapper

const (
	// Validation Failures
	ErrorCodeInvalidMSISDN     = "INVALID_MSISDN"
	ErrorCodeValidationFailure = "VALIDATION_FAIL"
	ErrorCodeEmptyMessage      = "EMPTY_MESSAGE"

	// Quota Failures
	ErrorCodeInsufficientQuota = "INSUF_QUOTA"
	ErrorCodeAccountNotFound   = "NO_ACCOUNT"

	// Concurrency Conflicts
	ErrorCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrorCodeJobActive      = "JOB_ACTIVE"

	// Gateway Failures (stored on the recipient row as last_error)
	ErrorCodeGatewayTimeout     = "GW_TIMEOUT"
	ErrorCodeGatewayRejected    = "GW_REJECTED"
	ErrorCodeGatewayUnavailable = "GW_UNAVAILABLE"
	ErrorCodeGatewayCircuitOpen = "GW_CIRCUIT_OPEN"
	ErrorCodeGatewayRateLimited = "GW_RATE_LIMITED"
	ErrorCodeInterrupted        = "interrupted"

	// System Errors
	ErrorCodeSystemError   = "SYS_ERR"
	ErrorCodeDatabaseError = "DB_ERR"
)
