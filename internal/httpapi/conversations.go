package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/session"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type deleteConversationsRequest struct {
	IDs []string `json:"ids"`
}

type appendMessagesRequest struct {
	Messages []session.Message `json:"messages" binding:"required,min=1"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.store.Conversations(c.Request.Context(), namespaceOf(c))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, list)
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
	}
	conv, err := h.store.CreateConversation(c.Request.Context(), namespaceOf(c), req.Title)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// DeleteConversations removes the ids in the body, or every conversation
// when no body is sent.
func (h *Handler) DeleteConversations(c *gin.Context) {
	ns := namespaceOf(c)
	if c.Request.ContentLength == 0 {
		if err := h.store.ClearConversations(c.Request.Context(), ns); err != nil {
			respondStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	var req deleteConversationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	remaining, err := h.store.DeleteConversations(c.Request.Context(), ns, req.IDs)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, remaining)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	remaining, err := h.store.DeleteConversation(c.Request.Context(), namespaceOf(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, remaining)
}

func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.store.Messages(c.Request.Context(), namespaceOf(c), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, msgs)
}

func (h *Handler) ReplaceMessages(c *gin.Context) {
	var msgs []session.Message
	if err := c.ShouldBindJSON(&msgs); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := h.store.SaveMessages(c.Request.Context(), namespaceOf(c), c.Param("id"), msgs); err != nil {
		respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AppendMessages(c *gin.Context) {
	var req appendMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	msgs, err := h.store.AppendMessages(c.Request.Context(), namespaceOf(c), c.Param("id"), req.Messages...)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondOK(c, msgs)
}
