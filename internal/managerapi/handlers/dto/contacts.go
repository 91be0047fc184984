package dto

import (
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
)

// UploadContactsRequest is the JSON form of POST /upload/contacts.
type UploadContactsRequest struct {
	Records []recipients.Record `json:"records" binding:"required"`
}

type UploadContactsResponse struct {
	Message   string                  `json:"message"`
	Inserted  int                     `json:"inserted"`
	Skipped   int                     `json:"skipped"`
	Total     int                     `json:"total"`
	TotalInDB int64                   `json:"total_in_db"`
	Rows      []recipients.RowOutcome `json:"rows"`
}

// AddContactRequest is the body of POST /contacts.
type AddContactRequest struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name"`
}

type ContactListResponse struct {
	Data       []recipients.Recipient `json:"data"`
	Pagination PaginationResponse     `json:"pagination"`
	Stats      recipients.Stats       `json:"stats"`
	TotalInDB  int64                  `json:"total_in_db"`
}
