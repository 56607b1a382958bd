package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/souqhub/souq-api/internal/service"
)

type ReportHandler struct {
	reportSvc *service.ReportService
}

func NewReportHandler(reportSvc *service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

func (h *ReportHandler) Sales(c *gin.Context) {
	resp, err := h.reportSvc.Sales(c.Request.Context(), c.Query("date"))
	if err != nil {
		reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) Overview(c *gin.Context) {
	resp, err := h.reportSvc.Overview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) TopSelling(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	resp, err := h.reportSvc.TopSelling(c.Request.Context(), c.Query("from"), c.Query("to"), limit)
	if err != nil {
		reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) DailyItems(c *gin.Context) {
	resp, err := h.reportSvc.DailyItems(c.Request.Context(), c.Query("date"))
	if err != nil {
		reportError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// reportError maps a bad date parameter to 400; everything else is a server
// fault and stays opaque to the client.
func reportError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
