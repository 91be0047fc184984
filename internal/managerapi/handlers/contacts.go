package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/managerapi/handlers/dto"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
)

const (
	defaultTimelineDays = 14
	maxTimelineDays     = 90
	maxUploadRows       = 500_000
)

type ContactsHandler struct {
	store recipients.Store
	now   func() time.Time
}

func NewContactsHandler(store recipients.Store) *ContactsHandler {
	return &ContactsHandler{store: store, now: time.Now}
}

// Upload handles POST /upload/contacts. It accepts either a JSON body of
// records or a multipart "file" holding phone,name CSV rows.
func (h *ContactsHandler) Upload(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "UploadContacts")

	var records []recipients.Record
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing upload file: " + err.Error()})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot open upload file"})
			return
		}
		defer f.Close()
		records, err = readCSVRecords(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid CSV file: " + err.Error()})
			return
		}
	} else {
		var req dto.UploadContactsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		records = req.Records
	}
	if len(records) > maxUploadRows {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d rows", maxUploadRows)})
		return
	}

	res, err := h.store.BulkInsert(logCtx, accountID(c), records)
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to insert contacts", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contacts"})
		return
	}
	stats, err := h.store.Stats(logCtx, accountID(c))
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to read contact stats", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read contact stats"})
		return
	}
	slog.InfoContext(logCtx, "Contacts uploaded", slog.Int("inserted", res.Inserted), slog.Int("skipped", res.Skipped))
	c.JSON(http.StatusOK, dto.UploadContactsResponse{
		Message:   fmt.Sprintf("%d contacts uploaded, %d skipped", res.Inserted, res.Skipped),
		Inserted:  res.Inserted,
		Skipped:   res.Skipped,
		Total:     len(records),
		TotalInDB: stats.Total,
		Rows:      res.Rows,
	})
}

// readCSVRecords reads phone,name rows. A first row whose phone column
// says "phone" is treated as a header.
func readCSVRecords(r io.Reader) ([]recipients.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []recipients.Record
	for line := 0; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if line == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "phone") {
			continue
		}
		rec := recipients.Record{Phone: row[0]}
		if len(row) > 1 {
			rec.Name = row[1]
		}
		out = append(out, rec)
	}
}

// Add handles POST /contacts
func (h *ContactsHandler) Add(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "AddContact")

	var req dto.AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	res, err := h.store.BulkInsert(logCtx, accountID(c), []recipients.Record{{Phone: req.Phone, Name: req.Name}})
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to insert contact", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contact"})
		return
	}
	row := res.Rows[0]
	switch row.Status {
	case codes.RowInserted:
		c.JSON(http.StatusCreated, row)
	case codes.RowInvalid:
		c.JSON(http.StatusBadRequest, row)
	default:
		c.JSON(http.StatusOK, row)
	}
}

// List handles GET /upload/contacts
func (h *ContactsHandler) List(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "ListContacts")

	status, err := recipients.ValidateFilter(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, offset := parsePagination(c)

	rows, total, err := h.store.List(logCtx, recipients.ListQuery{AccountID: accountID(c), Status: status, Limit: limit, Offset: offset})
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to list contacts", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contacts"})
		return
	}
	stats, err := h.store.Stats(logCtx, accountID(c))
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to read contact stats", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read contact stats"})
		return
	}
	if rows == nil {
		rows = []recipients.Recipient{}
	}
	c.JSON(http.StatusOK, dto.ContactListResponse{
		Data:       rows,
		Pagination: dto.PaginationResponse{Total: total, Limit: limit, Offset: offset},
		Stats:      stats,
		TotalInDB:  stats.Total,
	})
}

// Export handles GET /upload/contacts/export
func (h *ContactsHandler) Export(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "ExportContacts")

	status, err := recipients.ValidateFilter(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := "contacts"
	if status != "" {
		name += "_" + status
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, name))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"phone", "name", "status", "retries", "last_attempt_at", "created_at"})
	err = h.store.Export(logCtx, accountID(c), status, func(r recipients.Recipient) error {
		return w.Write([]string{
			r.Phone,
			r.Name,
			r.Status,
			strconv.Itoa(r.Retries),
			formatTime(r.LastAttemptAt),
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	})
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if err != nil {
		// headers are gone, the client sees a truncated file
		slog.ErrorContext(logCtx, "Contact export interrupted", slog.Any("error", err))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Timeline handles GET /upload/contacts/timeline
func (h *ContactsHandler) Timeline(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "ContactsTimeline")

	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultTimelineDays)))
	if err != nil || days < 1 {
		days = defaultTimelineDays
	} else if days > maxTimelineDays {
		days = maxTimelineDays
	}

	out, err := h.store.Timeline(logCtx, accountID(c), recipients.TimelineSince(h.now(), days))
	if err != nil {
		slog.ErrorContext(logCtx, "Failed to build timeline", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build timeline"})
		return
	}
	if out == nil {
		out = []recipients.DayCount{}
	}
	c.JSON(http.StatusOK, out)
}
