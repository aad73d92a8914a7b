package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/memory"
)

func (h *Handler) ListInteractions(c *gin.Context) {
	list, err := h.store.Interactions(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, list)
}

func (h *Handler) SaveInteraction(c *gin.Context) {
	var in memory.NewInteraction
	if err := c.ShouldBindJSON(&in); err != nil {
		respondInvalid(c, err)
		return
	}
	it, err := h.memory.SaveInteraction(c.Request.Context(), namespaceOf(c), in)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

func (h *Handler) Sentiment(c *gin.Context) {
	s, err := h.memory.AnalyzeSentiment(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, s)
}

func (h *Handler) ListFeedback(c *gin.Context) {
	m, err := h.store.RecommendationFeedback(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, m)
}

func (h *Handler) RecordFeedback(c *gin.Context) {
	id := strings.TrimSpace(c.Param("recommendationId"))
	if id == "" {
		respondInvalid(c, errors.New("recommendation id is required"))
		return
	}
	var fb memory.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		respondInvalid(c, err)
		return
	}
	rec, err := h.memory.RecordFeedback(c.Request.Context(), namespaceOf(c), id, fb)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, rec)
}
