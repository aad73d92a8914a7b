package httpapi

import (
	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/session"
)

func (h *Handler) GetPreferences(c *gin.Context) {
	p, err := h.store.Preferences(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *Handler) PutPreferences(c *gin.Context) {
	// omitted fields take their defaults; explicit values are stored as sent
	p := session.DefaultPreferences()
	if err := c.ShouldBindJSON(&p); err != nil {
		respondInvalid(c, err)
		return
	}
	saved, err := h.store.SavePreferences(c.Request.Context(), namespaceOf(c), p)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, saved)
}

func (h *Handler) PatchPreferences(c *gin.Context) {
	var patch session.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondInvalid(c, err)
		return
	}
	p, err := h.store.UpdatePreferences(c.Request.Context(), namespaceOf(c), patch)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, p)
}
