package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbanking "github.com/fintrack/backend/internal/application/banking"
	"github.com/fintrack/backend/internal/domain/banking"
	"github.com/fintrack/backend/internal/interfaces/http/dto"
	"github.com/fintrack/backend/internal/interfaces/http/middleware"
)

// BankingHandler handles bank connection and sync API endpoints
type BankingHandler struct {
	BaseHandler
	linkService  *appbanking.LinkService
	orchestrator *appbanking.SyncOrchestrator
	providers    banking.ProviderRegistry
}

// NewBankingHandler creates a new BankingHandler
func NewBankingHandler(
	linkService *appbanking.LinkService,
	orchestrator *appbanking.SyncOrchestrator,
	providers banking.ProviderRegistry,
) *BankingHandler {
	return &BankingHandler{
		linkService:  linkService,
		orchestrator: orchestrator,
		providers:    providers,
	}
}

// owner resolves the resource owner from the JWT claims, answering 401 when
// the claims are unusable
func (h *BankingHandler) owner(c *gin.Context) (banking.Owner, bool) {
	owner, err := middleware.OwnerFromContext(c)
	if err != nil {
		h.Unauthorized(c, "Invalid authentication claims")
		return banking.Owner{}, false
	}
	return owner, true
}

// connectionID parses the :id path parameter
func (h *BankingHandler) connectionID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid connection ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.BadRequest(c, "Invalid connection ID")
		return uuid.Nil, false
	}
	return id, true
}

// ProviderResponse describes an available banking provider
// @Description Available banking aggregator
type ProviderResponse struct {
	Code string `json:"code" example:"SALTEDGE"`
	Name string `json:"name" example:"Salt Edge"`
}

// ListProviders godoc
// @ID           listBankingProviders
// @Summary      List available providers
// @Description  Returns the banking aggregators enabled in this deployment
// @Tags         banking
// @Produce      json
// @Success      200 {object} APIResponse[[]ProviderResponse]
// @Security     BearerAuth
// @Router       /banking/providers [get]
func (h *BankingHandler) ListProviders(c *gin.Context) {
	adapters := h.providers.List()
	resp := make([]ProviderResponse, 0, len(adapters))
	for _, a := range adapters {
		resp = append(resp, ProviderResponse{
			Code: a.Code().String(),
			Name: a.Code().DisplayName(),
		})
	}
	h.Success(c, resp)
}

// InitiateLink godoc
// @ID           initiateBankLink
// @Summary      Start linking a bank
// @Description  Creates a pending connection and returns the provider's OAuth consent URL
// @Tags         banking
// @Accept       json
// @Produce      json
// @Param        request body appbanking.InitiateLinkRequest true "Link request"
// @Success      201 {object} APIResponse[appbanking.ConnectionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections [post]
func (h *BankingHandler) InitiateLink(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}

	var req appbanking.InitiateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	conn, err := h.linkService.InitiateLink(c.Request.Context(), owner, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, conn)
}

// CompleteLink godoc
// @ID           completeBankLink
// @Summary      Complete the OAuth link flow
// @Description  Finalizes the link after the provider redirected the user back. Idempotent on callback replays.
// @Tags         banking
// @Accept       json
// @Produce      json
// @Param        id path string true "Connection ID"
// @Param        request body appbanking.CompleteLinkRequest true "Provider callback parameters"
// @Success      200 {object} APIResponse[appbanking.ConnectionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections/{id}/callback [post]
func (h *BankingHandler) CompleteLink(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	var req appbanking.CompleteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	conn, err := h.linkService.CompleteLink(c.Request.Context(), owner, id, banking.CallbackParams(req.Params))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conn)
}

// ListConnections godoc
// @ID           listBankConnections
// @Summary      List bank connections
// @Description  Returns the caller's connections, optionally filtered by provider and status
// @Tags         banking
// @Produce      json
// @Param        provider query string false "Provider code filter"
// @Param        status query string false "Status filter"
// @Param        page query int false "Page number"
// @Param        page_size query int false "Page size"
// @Success      200 {object} APIResponse[[]appbanking.ConnectionResponse]
// @Security     BearerAuth
// @Router       /banking/connections [get]
func (h *BankingHandler) ListConnections(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	req.Normalize()

	filter := banking.ConnectionFilter{Page: req.Page, PageSize: req.PageSize}
	if req.Provider != "" {
		code := banking.ProviderCode(req.Provider)
		filter.Provider = &code
	}
	if req.Status != "" {
		status := banking.ConnectionStatus(req.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Unknown connection status")
			return
		}
		filter.Status = &status
	}

	conns, total, err := h.linkService.ListConnections(c.Request.Context(), owner, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, conns, total, req.Page, req.PageSize)
}

// GetConnection godoc
// @ID           getBankConnection
// @Summary      Get a bank connection
// @Tags         banking
// @Produce      json
// @Param        id path string true "Connection ID"
// @Success      200 {object} APIResponse[appbanking.ConnectionResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections/{id} [get]
func (h *BankingHandler) GetConnection(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	conn, err := h.linkService.GetConnection(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conn)
}

// ListLinkedAccounts godoc
// @ID           listLinkedAccounts
// @Summary      List accounts linked through a connection
// @Tags         banking
// @Produce      json
// @Param        id path string true "Connection ID"
// @Success      200 {object} APIResponse[[]appbanking.LinkedAccountResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections/{id}/accounts [get]
func (h *BankingHandler) ListLinkedAccounts(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	accounts, err := h.linkService.ListLinkedAccounts(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, accounts)
}

// TriggerSync godoc
// @ID           triggerBankSync
// @Summary      Trigger a sync run
// @Description  Runs a full sync for the connection. Concurrent attempts for the same connection answer 409.
// @Tags         banking
// @Produce      json
// @Param        id path string true "Connection ID"
// @Success      200 {object} APIResponse[banking.SyncResult]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections/{id}/sync [post]
func (h *BankingHandler) TriggerSync(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.SyncConnection(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListSyncLogs godoc
// @ID           listBankSyncLogs
// @Summary      List sync history
// @Description  Returns the sync audit records of a connection, newest first
// @Tags         banking
// @Produce      json
// @Param        id path string true "Connection ID"
// @Param        page query int false "Page number"
// @Param        page_size query int false "Page size"
// @Success      200 {object} APIResponse[[]appbanking.SyncLogResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections/{id}/sync-logs [get]
func (h *BankingHandler) ListSyncLogs(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	req.Normalize()

	logs, total, err := h.linkService.ListSyncLogs(c.Request.Context(), owner, id, req.Page, req.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, logs, total, req.Page, req.PageSize)
}

// RevokeConnection godoc
// @ID           revokeBankConnection
// @Summary      Revoke a bank connection
// @Description  Revokes the provider consent and marks the connection REVOKED. Linked accounts stop syncing but imported data is kept.
// @Tags         banking
// @Produce      json
// @Param        id path string true "Connection ID"
// @Success      200 {object} APIResponse[appbanking.ConnectionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /banking/connections/{id} [delete]
func (h *BankingHandler) RevokeConnection(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	id, ok := h.connectionID(c)
	if !ok {
		return
	}

	conn, err := h.linkService.RevokeConnection(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conn)
}
