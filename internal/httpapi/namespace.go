package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) NamespaceKeys(c *gin.Context) {
	ns := namespaceOf(c)
	keys, err := h.store.ListKeys(c.Request.Context(), ns)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, gin.H{"namespace": ns.String(), "keys": keys})
}

func (h *Handler) ClearNamespace(c *gin.Context) {
	ns := namespaceOf(c)
	n, err := h.store.ClearNamespace(c.Request.Context(), ns)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, gin.H{"namespace": ns.String(), "removed": n})
}

// MigrateLegacy pulls pre-namespacing data into the caller's account. Guests
// get a zero count. Legacy keys came from a single device's storage, so on
// multi-user servers only the operator CLI may assign them.
func (h *Handler) MigrateLegacy(c *gin.Context) {
	if !h.guestAccess {
		respondError(c, http.StatusForbidden, CodeForbidden, errors.New("legacy data is migrated by the operator on this server"))
		return
	}
	ns := namespaceOf(c)
	n, err := h.store.MigrateLegacy(c.Request.Context(), ns)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, gin.H{"namespace": ns.String(), "copied": n})
}
