package dto

import (
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
)

// SendSMSRequest is the body of POST /sms/send.
type SendSMSRequest struct {
	Message string `json:"message" binding:"required"`
}

// SearchSendRequest is the body of POST /search/send. Records are the
// phone list produced by the external search.
type SearchSendRequest struct {
	Message string              `json:"message" binding:"required"`
	Records []recipients.Record `json:"records" binding:"required,min=1"`
}

type StartResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	JobID           string `json:"job_id"`
	UnitsPerMessage int    `json:"units_per_message"`
	Total           int64  `json:"total"`
	Inserted        *int   `json:"inserted,omitempty"` // only for /search/send
	Backlog         *int64 `json:"backlog,omitempty"`  // pending rows the search did not add
}

type StopResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type LastMessageResponse struct {
	Message string `json:"message"`
}

type ResendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}
