package router

import (
	"github.com/gin-gonic/gin"

	"github.com/fintrack/backend/internal/interfaces/http/handler"
)

// BankingRoutes registers the bank connection and sync endpoints
type BankingRoutes struct {
	handler *handler.BankingHandler
}

// NewBankingRoutes creates the banking route registrar
func NewBankingRoutes(h *handler.BankingHandler) *BankingRoutes {
	return &BankingRoutes{handler: h}
}

// RegisterRoutes implements RouteRegistrar
func (r *BankingRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	banking := rg.Group("/banking")

	banking.GET("/providers", r.handler.ListProviders)

	banking.POST("/connections", r.handler.InitiateLink)
	banking.GET("/connections", r.handler.ListConnections)
	banking.GET("/connections/:id", r.handler.GetConnection)
	banking.DELETE("/connections/:id", r.handler.RevokeConnection)
	banking.POST("/connections/:id/callback", r.handler.CompleteLink)
	banking.GET("/connections/:id/accounts", r.handler.ListLinkedAccounts)
	banking.POST("/connections/:id/sync", r.handler.TriggerSync)
	banking.GET("/connections/:id/sync-logs", r.handler.ListSyncLogs)
}

// SystemRoutes registers the system information endpoints
type SystemRoutes struct {
	handler *handler.SystemHandler
}

// NewSystemRoutes creates the system route registrar
func NewSystemRoutes(h *handler.SystemHandler) *SystemRoutes {
	return &SystemRoutes{handler: h}
}

// RegisterRoutes implements RouteRegistrar
func (r *SystemRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	system.GET("/info", r.handler.GetSystemInfo)
}
