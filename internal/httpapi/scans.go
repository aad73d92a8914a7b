package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/analytics"
	"coffeeleaf/internal/history"
)

type addScanRequest struct {
	Result     string             `json:"result"`
	Confidence history.Confidence `json:"confidence"`
	Location   string             `json:"location"`
	Image      string             `json:"image"`
	Warning    string             `json:"warning"`
}

func (h *Handler) ListScans(c *gin.Context) {
	list, err := h.store.ScanHistory(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, list)
}

// AddScan records an inference result. The record id, date and time are
// assigned here.
func (h *Handler) AddScan(c *gin.Context) {
	var req addScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if strings.TrimSpace(req.Result) == "" {
		respondInvalid(c, errors.New("result is required"))
		return
	}
	rec := history.NewScanRecord(history.Scan{
		Label:      req.Result,
		Confidence: string(req.Confidence),
		Location:   req.Location,
		Image:      req.Image,
		Warning:    req.Warning,
	}, h.catalog, h.now())

	if _, err := h.store.AddScan(c.Request.Context(), namespaceOf(c), rec); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ClearScans(c *gin.Context) {
	if err := h.store.ClearScanHistory(c.Request.Context(), namespaceOf(c)); err != nil {
		respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveScan(c *gin.Context) {
	list, err := h.store.RemoveScan(c.Request.Context(), namespaceOf(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, list)
}

func (h *Handler) ScanStats(c *gin.Context) {
	list, err := h.store.ScanHistory(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, analytics.ComputeStats(list, h.catalog))
}

type reportResponse struct {
	Stats   analytics.HistoryStats `json:"stats"`
	Summary string                 `json:"summary"`
	Advice  string                 `json:"advice"`
}

// ScanReport returns the stats, their text summary and LLM advice.
func (h *Handler) ScanReport(c *gin.Context) {
	list, err := h.store.ScanHistory(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	stats := analytics.ComputeStats(list, h.catalog)
	advice, err := h.reporter.FarmReport(c.Request.Context(), stats)
	switch {
	case errors.Is(err, analytics.ErrNoLLM):
		respondError(c, http.StatusServiceUnavailable, CodeLLMUnavailable, err)
		return
	case err != nil:
		respondError(c, http.StatusBadGateway, CodeLLMUnavailable, errors.New("advice generation failed"))
		return
	}
	respondOK(c, reportResponse{Stats: stats, Summary: stats.GenerateReportSummary(), Advice: advice})
}
