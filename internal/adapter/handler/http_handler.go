package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/core/service"
	"github.com/rl1809/storefront-cache/internal/port"
)

type HTTPHandler struct {
	cacheService *service.ProductCacheService
	journal      port.BalanceJournalRepository
	logger       *zap.Logger
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ReplaceProductsRequest struct {
	Products []ProductRecordRequest `json:"products" binding:"required"`
}

type FieldValueRequest struct {
	Value *decimal.Decimal `json:"value" binding:"required"`
}

type BatchBalanceRequest struct {
	Balances map[string]BalanceRequest `json:"balances" binding:"required"`
}

type BatchBalanceResponse struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

type TTLRequest struct {
	Duration string `json:"duration"`
}

type ExpirationResponse struct {
	State       domain.ExpirationState `json:"state"`
	RemainingMs int64                  `json:"remainingMs"`
}

type SummaryResponse struct {
	Exists     bool               `json:"exists"`
	Count      int64              `json:"count"`
	RecordIDs  []string           `json:"recordIds"`
	Expiration ExpirationResponse `json:"expiration"`
}

// journal may be nil, in which case /journal reports not found.
func NewHTTPHandler(cacheService *service.ProductCacheService, journal port.BalanceJournalRepository, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{cacheService: cacheService, journal: journal, logger: logger}
}

func NewRouter(h *HTTPHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

func (h *HTTPHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	s := r.Group("/api/sessions/:sessionID")
	s.PUT("/products", h.ReplaceProducts)
	s.GET("/products", h.ListProducts)
	s.DELETE("/products", h.DeleteProducts)
	s.GET("/summary", h.Summary)

	s.GET("/products/:recordID", h.GetProduct)
	s.HEAD("/products/:recordID", h.ProductExists)
	s.PUT("/products/:recordID", h.UpsertProduct)
	s.DELETE("/products/:recordID", h.DeleteProduct)
	s.PUT("/products/:recordID/balance", h.UpdateBalance)
	s.PATCH("/products/:recordID/balance/:field", h.UpdateBalanceField)
	s.GET("/products/:recordID/consistency", h.BalanceConsistency)
	s.POST("/balances/batch", h.UpdateBalancesBatch)

	s.GET("/ttl", h.RemainingTTL)
	s.POST("/ttl/refresh", h.RefreshTTL)
	s.POST("/ttl/extend", h.ExtendTTL)

	s.GET("/journal", h.ListJournal)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ReplaceProducts(c *gin.Context) {
	var req ReplaceProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	records := make([]domain.ProductRecord, 0, len(req.Products))
	for _, p := range req.Products {
		record, err := p.toDomain()
		if err != nil {
			h.logger.Warn("Dropping product with incomplete balance",
				zap.String("session_id", c.Param("sessionID")),
				zap.String("record_id", p.ID))
			continue
		}
		records = append(records, record)
	}

	written, err := h.cacheService.ReplaceAll(c.Request.Context(), c.Param("sessionID"), records)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"written": written}})
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	records, err := h.cacheService.GetAll(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

func (h *HTTPHandler) DeleteProducts(c *gin.Context) {
	deleted, err := h.cacheService.DeleteAll(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"deleted": deleted}})
}

func (h *HTTPHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sessionID")

	exists, err := h.cacheService.CollectionExists(ctx, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	count, err := h.cacheService.Count(ctx, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ids, err := h.cacheService.RecordIDs(ctx, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	exp, err := h.cacheService.RemainingTTL(ctx, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: SummaryResponse{
		Exists:     exists,
		Count:      count,
		RecordIDs:  ids,
		Expiration: toExpirationResponse(exp),
	}})
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	record, found, err := h.cacheService.Get(c.Request.Context(), c.Param("sessionID"), c.Param("recordID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		h.notFound(c, "product not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

func (h *HTTPHandler) ProductExists(c *gin.Context) {
	exists, err := h.cacheService.Exists(c.Request.Context(), c.Param("sessionID"), c.Param("recordID"))
	if err != nil {
		c.Status(statusFor(err))
		return
	}
	if !exists {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (h *HTTPHandler) UpsertProduct(c *gin.Context) {
	var req ProductRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	record, err := req.toDomain()
	if err != nil {
		h.writeError(c, err)
		return
	}

	recordID := c.Param("recordID")
	if record.ID != "" && record.ID != recordID {
		h.badRequest(c, "record id does not match path")
		return
	}
	record.ID = recordID

	if err := h.cacheService.Upsert(c.Request.Context(), c.Param("sessionID"), record); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	removed, err := h.cacheService.Delete(c.Request.Context(), c.Param("sessionID"), c.Param("recordID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !removed {
		h.notFound(c, "product not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "product deleted"})
}

func (h *HTTPHandler) UpdateBalance(c *gin.Context) {
	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	balance, err := req.toDomain()
	if err != nil {
		h.writeError(c, err)
		return
	}

	applied, err := h.cacheService.UpdateBalance(c.Request.Context(), c.Param("sessionID"), c.Param("recordID"), balance)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !applied {
		h.notFound(c, "product not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "balance updated"})
}

func (h *HTTPHandler) UpdateBalanceField(c *gin.Context) {
	field, err := domain.ParseBalanceField(c.Param("field"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req FieldValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "value is required")
		return
	}

	applied, err := h.cacheService.UpdateBalanceField(c.Request.Context(), c.Param("sessionID"), c.Param("recordID"), field, *req.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !applied {
		h.notFound(c, "product not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "balance field updated"})
}

func (h *HTTPHandler) BalanceConsistency(c *gin.Context) {
	consistent, found, err := h.cacheService.BalanceConsistency(c.Request.Context(), c.Param("sessionID"), c.Param("recordID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		h.notFound(c, "product not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"consistent": consistent}})
}

func (h *HTTPHandler) UpdateBalancesBatch(c *gin.Context) {
	var req BatchBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	if err := h.cacheService.CheckBatchSize(len(req.Balances)); err != nil {
		h.writeError(c, err)
		return
	}
	updates := toBalanceUpdates(req.Balances)

	applied, err := h.cacheService.UpdateBalancesBatch(c.Request.Context(), c.Param("sessionID"), updates)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: BatchBalanceResponse{
		Applied: applied,
		Skipped: len(req.Balances) - applied,
	}})
}

func (h *HTTPHandler) RemainingTTL(c *gin.Context) {
	exp, err := h.cacheService.RemainingTTL(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpirationResponse(exp)})
}

// RefreshTTL falls back to the configured lifetime when no duration is given.
func (h *HTTPHandler) RefreshTTL(c *gin.Context) {
	ttl, ok := h.bindDuration(c, h.cacheService.DefaultTTL())
	if !ok {
		return
	}

	refreshed, err := h.cacheService.RefreshTTL(c.Request.Context(), c.Param("sessionID"), ttl)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !refreshed {
		h.notFound(c, "session not found")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "ttl refreshed"})
}

func (h *HTTPHandler) ExtendTTL(c *gin.Context) {
	extra, ok := h.bindDuration(c, 0)
	if !ok {
		return
	}

	extended, err := h.cacheService.ExtendTTL(c.Request.Context(), c.Param("sessionID"), extra)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !extended {
		h.notFound(c, "session not found or has no deadline")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "ttl extended"})
}

func (h *HTTPHandler) ListJournal(c *gin.Context) {
	if h.journal == nil {
		h.notFound(c, "balance journal is not enabled")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	changes, err := h.journal.ListChanges(c.Request.Context(), c.Param("sessionID"), limit)
	if err != nil {
		h.logger.Error("Failed to list balance journal", zap.String("session_id", c.Param("sessionID")), zap.Error(err))
		c.JSON(http.StatusBadGateway, Response{Success: false, Message: "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: changes})
}

func (h *HTTPHandler) bindDuration(c *gin.Context, fallback time.Duration) (time.Duration, bool) {
	var req TTLRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body")
			return 0, false
		}
	}
	if req.Duration == "" {
		return fallback, true
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		h.badRequest(c, "duration must look like 30m or 90s")
		return 0, false
	}
	return d, true
}

func toExpirationResponse(exp domain.Expiration) ExpirationResponse {
	return ExpirationResponse{State: exp.State, RemainingMs: exp.Remaining.Milliseconds()}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreOperation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status != http.StatusBadRequest {
		// Store failures are logged by the service; keep internals out of the body.
		message = "cache unavailable"
	}
	c.JSON(status, Response{Success: false, Message: message})
}

func (h *HTTPHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message})
}

func (h *HTTPHandler) notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{Success: false, Message: message})
}
