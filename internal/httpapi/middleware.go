package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/auth"
	"coffeeleaf/internal/identity"
	"coffeeleaf/internal/logger"
)

const namespaceKey = "namespace"

// RequestLogger logs one line per request, level by status class.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if v, ok := c.Get(namespaceKey); ok {
			fields = append(fields, "namespace", v.(identity.Namespace).String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// Identity attaches the caller's namespace to the request. A valid bearer
// token for a known user selects that user's namespace; a missing, invalid
// or expired token falls back to the guest namespace instead of failing.
func Identity(tokens *auth.Tokens, users *auth.Service, resolver *identity.Resolver, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if raw := bearerToken(c); raw != "" && tokens != nil && users != nil {
			userID, err := tokens.Parse(raw)
			if err != nil {
				log.Debug("ignoring bearer token", "error", err)
			} else if u, err := users.Get(userID); err != nil {
				log.Debug("token for unknown user", "user_id", userID)
			} else {
				ctx = auth.WithUser(ctx, u)
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Set(namespaceKey, resolver.Resolve(ctx))
		c.Next()
	}
}

// RequireAccount refuses callers that resolved to the guest namespace unless
// guest access is enabled.
func RequireAccount(allowGuest bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowGuest && namespaceOf(c).IsGuest() {
			respondError(c, http.StatusUnauthorized, CodeAuthRequired, errors.New("sign in to use this endpoint"))
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func namespaceOf(c *gin.Context) identity.Namespace {
	if v, ok := c.Get(namespaceKey); ok {
		if ns, ok := v.(identity.Namespace); ok {
			return ns
		}
	}
	return identity.Guest()
}
