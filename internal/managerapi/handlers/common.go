package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SYA-Group/sya-sms-dispatch/internal/dispatch"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

const (
	DefaultLimit  = 20
	MaxLimit      = 100
	DefaultOffset = 0

	AccountIDHeader = "X-Account-ID"
	accountIDKey    = "account_id"
)

// parsePagination extracts limit and offset from query params with validation and defaults.
func parsePagination(c *gin.Context) (limit, offset int32) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(DefaultLimit))
	offsetStr := c.DefaultQuery("offset", strconv.Itoa(DefaultOffset))

	limit64, err := strconv.ParseInt(limitStr, 10, 32)
	if err != nil || limit64 <= 0 {
		limit = DefaultLimit
	} else if limit64 > MaxLimit {
		slog.WarnContext(c.Request.Context(), "Requested limit exceeds maximum, capping.", slog.Int64("requested", limit64), slog.Int("max", MaxLimit))
		limit = MaxLimit
	} else {
		limit = int32(limit64)
	}

	offset64, err := strconv.ParseInt(offsetStr, 10, 32)
	if err != nil || offset64 < 0 {
		offset = DefaultOffset
	} else {
		offset = int32(offset64)
	}

	return limit, offset
}

// AccountMiddleware reads the account set by the upstream auth layer.
func AccountMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(AccountIDHeader), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid " + AccountIDHeader + " header"})
			return
		}
		c.Set(accountIDKey, id)
		c.Request = c.Request.WithContext(logging.ContextWithAccountID(c.Request.Context(), id))
		c.Next()
	}
}

func accountID(c *gin.Context) int64 {
	return c.GetInt64(accountIDKey)
}

// respondError maps a domain error to its HTTP status. Unexpected errors
// are logged and reported with msg.
func respondError(c *gin.Context, logCtx context.Context, err error, msg string) {
	code := dispatch.Code(err)
	status := errormapper.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(logCtx, msg, slog.Any("error", err))
		c.JSON(status, gin.H{"error": msg, "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
