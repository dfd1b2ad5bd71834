package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	syncapp "github.com/sellerbridge/backend/internal/application/sync"
	"github.com/sellerbridge/backend/internal/domain/marketplace"
	"github.com/sellerbridge/backend/internal/interfaces/http/dto"
)

// SyncHandler handles marketplace synchronization API endpoints
type SyncHandler struct {
	BaseHandler
	syncService *syncapp.Service
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService *syncapp.Service) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// ===================== Request/Response Types for Swagger =====================

// StartSyncRequest represents the HTTP request body for starting a sync run
// @Description Request body for starting a marketplace sync run
type StartSyncRequest struct {
	AccountScope string `json:"account_scope" example:"BOTH"`
	Resource     string `json:"resource" binding:"required" example:"products"`
	Mode         string `json:"mode" example:"incremental"`
	MaxPages     int    `json:"max_pages" binding:"omitempty,gte=0" example:"50"`
	RunAsync     bool   `json:"run_async" example:"true"`
}

// toApplicationRequest converts the HTTP body to an application request,
// filling the documented defaults for omitted fields.
func (r *StartSyncRequest) toApplicationRequest() syncapp.StartRequest {
	scope := strings.ToUpper(strings.TrimSpace(r.AccountScope))
	if scope == "" {
		scope = string(marketplace.ScopeBoth)
	}
	mode := strings.ToLower(strings.TrimSpace(r.Mode))
	if mode == "" {
		mode = string(marketplace.ModeIncremental)
	}
	return syncapp.StartRequest{
		Scope:    marketplace.AccountScope(scope),
		Resource: marketplace.ResourceType(strings.ToLower(strings.TrimSpace(r.Resource))),
		Mode:     marketplace.SyncMode(mode),
		MaxPages: r.MaxPages,
		Async:    r.RunAsync,
	}
}

// ListRunsQuery represents query parameters for the run history endpoint
type ListRunsQuery struct {
	Resource string `form:"resource" binding:"omitempty,oneof=products orders"`
	Status   string `form:"status" binding:"omitempty,oneof=pending running completed failed timed_out"`
	Limit    int    `form:"limit" binding:"omitempty,gte=1,lte=500"`
}

// CleanupRequest represents the HTTP request body for reaping stuck runs
// @Description Request body for the stuck-run cleanup endpoint
type CleanupRequest struct {
	OlderThanMinutes int `json:"older_than_minutes" binding:"omitempty,gte=1" example:"30"`
}

// StartSync godoc
// @ID           startSync
// @Summary      Start a sync run
// @Description  Creates a sync run for the requested scope and resource. Synchronous
// @Description  requests block until the run reaches a terminal status; async requests
// @Description  return the running ledger row immediately.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body StartSyncRequest true "Sync run parameters"
// @Success      200 {object} APIResponse[syncapp.RunView]
// @Success      202 {object} APIResponse[syncapp.RunView]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /sync [post]
func (h *SyncHandler) StartSync(c *gin.Context) {
	var body StartSyncRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	req := body.toApplicationRequest()
	if err := req.Validate(); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	view, err := h.syncService.Start(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if req.Async {
		h.Accepted(c, view)
		return
	}
	h.Success(c, view)
}

// GetRun godoc
// @ID           getSyncRun
// @Summary      Get one sync run
// @Description  Returns the ledger row for a run, including live page and item
// @Description  counters while the run is still in flight.
// @Tags         sync
// @Produce      json
// @Param        id path string true "Run ID" format(uuid)
// @Success      200 {object} APIResponse[syncapp.RunView]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /sync/runs/{id} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "invalid run id")
		return
	}

	id, err := uuid.Parse(uri.ID)
	if err != nil {
		h.BadRequest(c, "invalid run id")
		return
	}

	view, err := h.syncService.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// ListRuns godoc
// @ID           listSyncRuns
// @Summary      List sync runs
// @Description  Returns run history, newest first, optionally filtered by resource
// @Description  and status.
// @Tags         sync
// @Produce      json
// @Param        resource query string false "Filter by resource" Enums(products, orders)
// @Param        status query string false "Filter by status" Enums(pending, running, completed, failed, timed_out)
// @Param        limit query int false "Maximum rows to return" default(50)
// @Success      200 {object} APIResponse[[]syncapp.RunView]
// @Failure      400 {object} ErrorResponse
// @Router       /sync/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var query ListRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	views, err := h.syncService.ListRuns(c.Request.Context(), syncapp.ListRunsRequest{
		Resource: query.Resource,
		Status:   query.Status,
		Limit:    query.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, views, int64(len(views)), len(views), query.Limit)
}

// Cleanup godoc
// @ID           cleanupSyncRuns
// @Summary      Reap stuck sync runs
// @Description  Marks runs that have been in the running status for longer than the
// @Description  given age as failed. Omitting the age uses the configured default.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body CleanupRequest true "Cleanup parameters"
// @Success      200 {object} APIResponse[syncapp.CleanupResult]
// @Failure      400 {object} ErrorResponse
// @Router       /sync/cleanup [post]
func (h *SyncHandler) Cleanup(c *gin.Context) {
	var body CleanupRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	olderThan := time.Duration(body.OlderThanMinutes) * time.Minute
	result, err := h.syncService.Cleanup(c.Request.Context(), olderThan)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CatalogItemResponse represents one canonical catalog row
// @Description Canonical catalog item after conflict resolution
type CatalogItemResponse struct {
	SKU      string `json:"sku"`
	Account  string `json:"account"`
	RemoteID int64  `json:"remote_id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	Active   bool   `json:"active"`
}

// GetCanonicalItem godoc
// @ID           getCanonicalCatalogItem
// @Summary      Get the canonical catalog item for a SKU
// @Description  Resolves account conflicts for the SKU and returns the winning row.
// @Tags         catalog
// @Produce      json
// @Param        sku path string true "Item SKU"
// @Success      200 {object} APIResponse[CatalogItemResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /catalog/items/{sku} [get]
func (h *SyncHandler) GetCanonicalItem(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		h.BadRequest(c, "sku is required")
		return
	}

	item, err := h.syncService.Canonical(c.Request.Context(), sku)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, CatalogItemResponse{
		SKU:      item.SKU,
		Account:  string(item.Account),
		RemoteID: item.RemoteID,
		Name:     item.Name,
		Price:    item.Price.String(),
		Stock:    item.Stock,
		Active:   item.Active,
	})
}

// GetCatalogStats godoc
// @ID           getCatalogStats
// @Summary      Get catalog statistics
// @Description  Returns the number of catalog rows currently stored.
// @Tags         catalog
// @Produce      json
// @Success      200 {object} APIResponse[CountData]
// @Router       /catalog/stats [get]
func (h *SyncHandler) GetCatalogStats(c *gin.Context) {
	count, err := h.syncService.CatalogCount(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: count})
}

// RegisterRoutes registers sync and catalog routes on the API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.POST("", h.StartSync)
		sync.GET("/runs", h.ListRuns)
		sync.GET("/runs/:id", h.GetRun)
		sync.POST("/cleanup", h.Cleanup)
	}

	catalog := rg.Group("/catalog")
	{
		catalog.GET("/items/:sku", h.GetCanonicalItem)
		catalog.GET("/stats", h.GetCatalogStats)
	}
}
