package rest

import (
	"net/http"
	"strings"

	"github.com/cygirat-cmd/kiki-server/identity"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BootstrapHandler resolves the acting identity when a client restores
// a session on launch.
type BootstrapHandler struct {
	provider *identity.Provider
	guests   *session.GuestStore
	logger   *zap.Logger
}

// NewBootstrapHandler creates a new BootstrapHandler.
func NewBootstrapHandler(p *identity.Provider, guests *session.GuestStore, logger *zap.Logger) *BootstrapHandler {
	return &BootstrapHandler{provider: p, guests: guests, logger: logger}
}

// Bootstrap handles POST /api/session/bootstrap. With no Authorization
// header the device continues (or starts) a guest session. With a
// token, identity resolution may come back unconfirmed when the
// authoritative check is slow; unconfirmed sessions are read-only.
func (h *BootstrapHandler) Bootstrap(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	guestID := ""
	if token == "" {
		var err error
		guestID, err = h.guests.InitSession(c.Request.Context(), deviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session init failed"})
			return
		}
	}

	id, err := h.provider.Bootstrap(c.Request.Context(), token, guestID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":        string(id.Kind),
		"guest_id":    id.GuestID,
		"account_id":  id.AccountID,
		"unconfirmed": id.Unconfirmed,
		"writable":    id.CanWrite(),
	})
}
