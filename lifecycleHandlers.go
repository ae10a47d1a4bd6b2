package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/models"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/mmdatafocus/craftstock_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ledgerAPI serves the ledger engine over HTTP. The engine is published once dependencies
// are connected; until then the readiness gate answers 503.
type ledgerAPI struct {
	engine atomic.Pointer[workflow.LedgerEngine]
	// outboxDB backs the outbox status endpoints; nil when the store is not gorm backed.
	outboxDB func() *gorm.DB
}

func (api *ledgerAPI) ready() bool {
	return api.engine.Load() != nil
}

func (api *ledgerAPI) ledger() *workflow.LedgerEngine {
	return api.engine.Load()
}

type createPurchaseRequest struct {
	Code         string          `json:"code"`
	MaterialName string          `json:"material_name" binding:"required"`
	MaterialType string          `json:"material_type" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Supplier     string          `json:"supplier"`
	PurchasedAt  *time.Time      `json:"purchased_at"`
}

type createSkuRequest struct {
	Code          string                    `json:"code"`
	Name          string                    `json:"name" binding:"required"`
	Materials     []models.BatchConsumption `json:"materials"`
	UnitsProduced int                       `json:"units_produced"`
}

type sellSkuRequest struct {
	Quantity  int             `json:"quantity"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

type destroySkuRequest struct {
	Quantity         int                     `json:"quantity"`
	ReturnToMaterial bool                    `json:"return_to_material"`
	ReturnQuantities map[int]decimal.Decimal `json:"return_quantities"`
	Reason           string                  `json:"reason"`
}

type restockSkuRequest struct {
	Units int `json:"units"`
}

// ledgerErrorStatus maps a ledger error kind onto its HTTP status.
func ledgerErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRecipe), errors.Is(err, models.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrInsufficientAvailable),
		errors.Is(err, models.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrOverRelease), errors.Is(err, models.ErrReturnExceedsConsumption):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSerializationFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := ledgerErrorStatus(err)
	le, ok := models.AsLedgerError(err)
	if !ok || status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error(), "kind": le.Kind}
	if le.SkuId != nil {
		body["sku_id"] = *le.SkuId
	}
	if le.MaterialId != nil {
		body["material_id"] = *le.MaterialId
	}
	if le.Requested != nil {
		body["requested"] = le.Requested.String()
	}
	if le.Available != nil {
		body["available"] = le.Available.String()
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, body)
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "invalid request",
		"kind":   models.KindInvalidQuantity,
		"fields": utils.ProcessValidationErrors(err),
	})
}

func skuIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sku id", "kind": models.KindInvalidQuantity})
		return 0, false
	}
	return id, true
}

func createdOrReplayed(replayed bool) int {
	if replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (api *ledgerAPI) createPurchaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		materialType, err := models.ParseMaterialType(req.MaterialType)
		if err != nil {
			respondError(c, models.NewInvalidQuantityError("material type must be BEADS, PIECES or WEIGHT"))
			return
		}
		result, err := api.ledger().CreatePurchase(c.Request.Context(), models.NewPurchase{
			Code:         strings.TrimSpace(req.Code),
			MaterialName: strings.TrimSpace(req.MaterialName),
			MaterialType: materialType,
			Quantity:     req.Quantity,
			UnitPrice:    req.UnitPrice,
			Supplier:     strings.TrimSpace(req.Supplier),
			PurchasedAt:  req.PurchasedAt,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(createdOrReplayed(result.Replayed), result)
	}
}

func (api *ledgerAPI) createSkuHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSkuRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := api.ledger().CreateSku(c.Request.Context(), workflow.CreateSkuInput{
			Code:          strings.TrimSpace(req.Code),
			Name:          strings.TrimSpace(req.Name),
			Materials:     req.Materials,
			UnitsProduced: req.UnitsProduced,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(createdOrReplayed(result.Replayed), result)
	}
}

func (api *ledgerAPI) sellSkuHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skuId, ok := skuIdParam(c)
		if !ok {
			return
		}
		var req sellSkuRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := api.ledger().SellSku(c.Request.Context(), skuId, req.Quantity, req.SalePrice)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (api *ledgerAPI) destroySkuHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skuId, ok := skuIdParam(c)
		if !ok {
			return
		}
		var req destroySkuRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := api.ledger().DestroySku(c.Request.Context(), workflow.DestroySkuInput{
			SkuId:            skuId,
			Quantity:         req.Quantity,
			ReturnToMaterial: req.ReturnToMaterial,
			ReturnQuantities: req.ReturnQuantities,
			Reason:           req.Reason,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (api *ledgerAPI) restockSkuHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skuId, ok := skuIdParam(c)
		if !ok {
			return
		}
		var req restockSkuRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := api.ledger().RestockSku(c.Request.Context(), skuId, req.Units)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (api *ledgerAPI) restockCapacityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skuId, ok := skuIdParam(c)
		if !ok {
			return
		}
		result, err := api.ledger().GetRestockCapacity(c.Request.Context(), skuId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (api *ledgerAPI) reconstructHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skuId, ok := skuIdParam(c)
		if !ok {
			return
		}
		result, err := api.ledger().Reconstruct(c.Request.Context(), skuId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (api *ledgerAPI) financialInvariantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		skuId, ok := skuIdParam(c)
		if !ok {
			return
		}
		result, err := api.ledger().CheckFinancialInvariant(c.Request.Context(), skuId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (api *ledgerAPI) financialRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := api.ledger().RecordFor(c.Request.Context(), c.Param("ref"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func (api *ledgerAPI) outboxDatabase(c *gin.Context) *gorm.DB {
	var db *gorm.DB
	if api.outboxDB != nil {
		db = api.outboxDB()
	}
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbox is not available"})
	}
	return db
}

func (api *ledgerAPI) outboxStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := api.outboxDatabase(c)
		if db == nil {
			return
		}
		status, err := models.GetOutboxStatus(c.Request.Context(), db, c.Param("ref"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// outboxReprocessHandler requeues FAILED/DEAD events of one operation.
func (api *ledgerAPI) outboxReprocessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := api.outboxDatabase(c)
		if db == nil {
			return
		}
		status, err := models.ReprocessOutbox(c.Request.Context(), db, c.Param("ref"))
		if err != nil {
			respondError(c, err)
			return
		}
		config.GetLogger().WithField("business_operation_ref", status.BusinessOperationRef).Info("outbox event requeued")
		c.JSON(http.StatusOK, status)
	}
}

func (api *ledgerAPI) registerRoutes(r gin.IRouter) {
	r.POST("/purchases", api.createPurchaseHandler())
	r.POST("/skus", api.createSkuHandler())
	r.POST("/skus/:id/sell", api.sellSkuHandler())
	r.POST("/skus/:id/destroy", api.destroySkuHandler())
	r.POST("/skus/:id/restock", api.restockSkuHandler())
	r.GET("/skus/:id/restock-capacity", api.restockCapacityHandler())
	r.GET("/skus/:id/reconstruct", api.reconstructHandler())
	r.GET("/skus/:id/financial-invariant", api.financialInvariantHandler())
	r.GET("/financial-records/:ref", api.financialRecordHandler())
	// Ops tooling: inspect or replay lifecycle events that failed to publish.
	r.GET("/internal/ops/outbox/:ref", api.outboxStatusHandler())
	r.POST("/internal/ops/outbox/:ref/reprocess", api.outboxReprocessHandler())
}
