// Package httpapi exposes the session store over HTTP with gin.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/analytics"
	"coffeeleaf/internal/auth"
	"coffeeleaf/internal/history"
	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/logger"
	"coffeeleaf/internal/memory"
	"coffeeleaf/internal/session"
)

// Deps is everything the handlers need. Users and Tokens may be nil, in
// which case the auth routes answer 503. Reporter may be nil when no LLM is
// configured.
//
// GuestAccess serves unauthenticated callers from the shared guest namespace.
// Enable it only when one device talks to the server; otherwise every data
// route requires a signed-in account.
type Deps struct {
	Store    *session.Store
	Memory   *memory.Service
	Users    *auth.Service
	Tokens   *auth.Tokens
	Catalog  *history.Catalog
	Reporter *analytics.Reporter
	Log      *logger.Logger
	Now      func() time.Time

	GuestAccess bool
}

type Handler struct {
	store    *session.Store
	memory   *memory.Service
	users    *auth.Service
	tokens   *auth.Tokens
	catalog  *history.Catalog
	reporter *analytics.Reporter
	log      *logger.Logger
	now      func() time.Time

	guestAccess bool
}

func NewRouter(d Deps) *gin.Engine {
	log := logger.OrNop(d.Log).With("component", "http")
	h := &Handler{
		store:    d.Store,
		memory:   d.Memory,
		users:    d.Users,
		tokens:   d.Tokens,
		catalog:  d.Catalog,
		reporter: d.Reporter,
		log:      log,
		now:      d.Now,

		guestAccess: d.GuestAccess,
	}
	if h.catalog == nil {
		h.catalog = history.DefaultCatalog()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.memory == nil {
		h.memory = memory.NewService(d.Store, log)
	}

	resolver := identity.NewResolver(auth.ContextSource{}, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.Use(Identity(d.Tokens, d.Users, resolver, log))

	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/token", h.IssueToken)

	data := v1.Group("")
	data.Use(RequireAccount(d.GuestAccess))
	{
		data.GET("/scans", h.ListScans)
		data.POST("/scans", h.AddScan)
		data.DELETE("/scans", h.ClearScans)
		data.DELETE("/scans/:id", h.RemoveScan)
		data.GET("/scans/stats", h.ScanStats)
		data.GET("/scans/report", h.ScanReport)

		data.GET("/conversations", h.ListConversations)
		data.POST("/conversations", h.CreateConversation)
		data.DELETE("/conversations", h.DeleteConversations)
		data.DELETE("/conversations/:id", h.DeleteConversation)
		data.GET("/conversations/:id/messages", h.ListMessages)
		data.PUT("/conversations/:id/messages", h.ReplaceMessages)
		data.POST("/conversations/:id/messages", h.AppendMessages)

		data.GET("/preferences", h.GetPreferences)
		data.PUT("/preferences", h.PutPreferences)
		data.PATCH("/preferences", h.PatchPreferences)

		data.GET("/interactions", h.ListInteractions)
		data.POST("/interactions", h.SaveInteraction)
		data.GET("/interactions/sentiment", h.Sentiment)
		data.GET("/feedback", h.ListFeedback)
		data.POST("/feedback/:recommendationId", h.RecordFeedback)

		data.GET("/namespace/keys", h.NamespaceKeys)
		data.DELETE("/namespace", h.ClearNamespace)
		data.POST("/namespace/legacy", h.MigrateLegacy)
	}

	return router
}

func (h *Handler) Health(c *gin.Context) {
	respondOK(c, gin.H{"status": "ok"})
}
