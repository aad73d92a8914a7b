package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coffeeleaf/internal/auth"
	"coffeeleaf/internal/identity"
)

var errGuestDisabled = errors.New("guest data is not available on this server")

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	// AttributeGuestData copies the guest namespace into the account.
	AttributeGuestData bool `json:"attributeGuestData"`
}

type tokenRequest struct {
	Email              string `json:"email"`
	Password           string `json:"password"`
	AttributeGuestData bool   `json:"attributeGuestData"`
}

type tokenResponse struct {
	Token        string    `json:"token"`
	User         auth.User `json:"user"`
	MigratedKeys int       `json:"migratedKeys"`
	LegacyKeys   int       `json:"legacyKeys"`
}

func (h *Handler) accountsEnabled(c *gin.Context) bool {
	if h.users == nil || h.tokens == nil {
		respondError(c, http.StatusServiceUnavailable, CodeAuthUnavailable, errors.New("accounts are disabled on this server"))
		return false
	}
	return true
}

// guestDataAllowed rejects guest attribution on multi-user servers, where the
// guest namespace is not owned by any one device.
func (h *Handler) guestDataAllowed(c *gin.Context, requested bool) bool {
	if requested && !h.guestAccess {
		respondError(c, http.StatusForbidden, CodeForbidden, errGuestDisabled)
		return false
	}
	return true
}

// Register creates an account and signs it in.
func (h *Handler) Register(c *gin.Context) {
	if !h.accountsEnabled(c) {
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if !strings.Contains(req.Email, "@") {
		respondInvalid(c, errors.New("a valid email is required"))
		return
	}
	if !h.guestDataAllowed(c, req.AttributeGuestData) {
		return
	}

	u, err := h.users.Register(req.Email, req.Name, req.Password)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		respondError(c, http.StatusConflict, CodeEmailTaken, err)
		return
	case errors.Is(err, auth.ErrWeakPassword):
		respondInvalid(c, err)
		return
	case err != nil:
		h.log.Error("register failed", "error", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, errors.New("could not register user"))
		return
	}
	h.signIn(c, http.StatusCreated, u, req.AttributeGuestData)
}

// IssueToken signs in an existing account by email and password.
func (h *Handler) IssueToken(c *gin.Context) {
	if !h.accountsEnabled(c) {
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondInvalid(c, errors.New("email and password are required"))
		return
	}
	if !h.guestDataAllowed(c, req.AttributeGuestData) {
		return
	}

	u, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		h.log.Debug("sign-in refused", "error", err)
		respondError(c, http.StatusUnauthorized, CodeInvalidCredentials, auth.ErrInvalidCredentials)
		return
	}
	h.signIn(c, http.StatusOK, u, req.AttributeGuestData)
}

// signIn issues the token. On single-device servers it also copies the guest
// namespace when asked, then pulls in pre-namespacing data.
func (h *Handler) signIn(c *gin.Context, status int, u auth.User, attribute bool) {
	token, err := h.tokens.Issue(u)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	resp := tokenResponse{Token: token, User: u.Public()}

	if h.guestAccess {
		ctx := c.Request.Context()
		ns := identity.ForUser(u.ID)
		if attribute {
			if resp.MigratedKeys, err = h.store.MigrateNamespace(ctx, identity.Guest(), ns); err != nil {
				respondStoreError(c, err)
				return
			}
		}
		if resp.LegacyKeys, err = h.store.MigrateLegacy(ctx, ns); err != nil {
			respondStoreError(c, err)
			return
		}
	}
	c.JSON(status, resp)
}
