package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/middleware"
	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/service"
)

type MarketHandler struct {
	marketSvc *service.MarketService
}

func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

func (h *MarketHandler) Create(c *gin.Context) {
	var req dto.CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	market, err := h.marketSvc.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrPhoneTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "phone number already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, toMarketResponse(market))
}

func (h *MarketHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market ID"})
		return
	}

	// A market owner may only read its own account.
	auth := middleware.GetAuthContext(c)
	if auth.Role == model.RoleMarketOwner && (auth.MarketID == nil || *auth.MarketID != id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	market, err := h.marketSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMarketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toMarketResponse(market))
}

func (h *MarketHandler) List(c *gin.Context) {
	markets, err := h.marketSvc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	resp := make([]dto.MarketResponse, 0, len(markets))
	for i := range markets {
		resp = append(resp, toMarketResponse(&markets[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MarketHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market ID"})
		return
	}
	var req dto.UpdateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	market, err := h.marketSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMarketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
		case errors.Is(err, service.ErrPhoneTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "phone number already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, toMarketResponse(market))
}

func (h *MarketHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market ID"})
		return
	}
	if err := h.marketSvc.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrMarketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
		case errors.Is(err, service.ErrMarketHasHistory):
			c.JSON(http.StatusConflict, gin.H{"error": "market has ledger or order history and cannot be deleted"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "market deleted"})
}

// AdjustBalance records a payment or manual adjustment against a market.
func (h *MarketHandler) AdjustBalance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market ID"})
		return
	}
	var req dto.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market, err := h.marketSvc.AdjustBalance(c.Request.Context(), id, req.Amount, req.Type, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMarketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidEntryType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.MarketSnapshotResponse{
		ID: market.ID, Name: market.Name, BalanceDue: market.BalanceDue,
	})
}

func (h *MarketHandler) ListLedger(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market ID"})
		return
	}
	entries, err := h.marketSvc.ListLedger(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMarketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	resp := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.LedgerEntryResponse{
			ID: e.ID, MarketID: e.MarketID, Amount: e.Amount,
			Type: e.Type, Note: e.Note, CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func toMarketResponse(m *model.Market) dto.MarketResponse {
	return dto.MarketResponse{
		ID:          m.ID,
		Name:        m.Name,
		PhoneNumber: m.PhoneNumber,
		Description: m.Description,
		BalanceDue:  m.BalanceDue,
	}
}
