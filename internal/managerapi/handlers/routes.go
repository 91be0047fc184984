package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SYA-Group/sya-sms-dispatch/internal/dispatch"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
)

// Deps carries what the API handlers need.
type Deps struct {
	Dispatch *dispatch.Service
	Store    recipients.Store
	Ledger   quota.Ledger
	Health   HealthChecker
}

// SetupRoutes configures the Gin engine with all API routes.
func SetupRoutes(router gin.IRouter, d Deps) {
	smsHandler := NewSMSHandler(d.Dispatch, d.Store)
	contactsHandler := NewContactsHandler(d.Store)
	quotaHandler := NewQuotaHandler(d.Ledger, d.Store)

	health := d.Health
	if health == nil {
		health = d.Store.Ping
	}
	router.GET("/health", Health(health))

	api := router.Group("/api/v1")
	api.Use(AccountMiddleware())

	// --- Dispatch Routes ---
	smsGroup := api.Group("/sms")
	{
		smsGroup.POST("/send", smsHandler.Send)
		smsGroup.POST("/stop", smsHandler.Stop)
		smsGroup.GET("/progress", smsHandler.Progress)
		smsGroup.GET("/last_message", smsHandler.LastMessage)
	}
	api.POST("/search/send", smsHandler.SearchSend)

	// --- Contact Routes ---
	api.POST("/contacts", contactsHandler.Add)
	uploadGroup := api.Group("/upload/contacts")
	{
		uploadGroup.POST("", contactsHandler.Upload)
		uploadGroup.GET("", contactsHandler.List)
		uploadGroup.GET("/export", contactsHandler.Export)
		uploadGroup.GET("/timeline", contactsHandler.Timeline)
		uploadGroup.POST("/resend_all", smsHandler.ResendAll)
	}

	// --- Quota Routes ---
	quotaGroup := api.Group("/quota")
	{
		quotaGroup.GET("", quotaHandler.GetQuota)
		quotaGroup.POST("/topup", quotaHandler.TopUp)
		quotaGroup.PUT("/threshold", quotaHandler.SetThreshold)
		quotaGroup.GET("/history", quotaHandler.History)
	}
	api.GET("/dashboard/stats", quotaHandler.DashboardStats)
}
