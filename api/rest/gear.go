package rest

import (
	"errors"
	"net/http"

	"github.com/cygirat-cmd/kiki-server/equipsync"
	"github.com/cygirat-cmd/kiki-server/gear"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GearHandler serves the signed-in account's collection, favorites and
// equipment. All routes sit behind Auth middleware; each request
// resolves its own account's mirror.
type GearHandler struct {
	account *session.AccountStore
	sync    *equipsync.Adapter
	logger  *zap.Logger
}

// NewGearHandler creates a new GearHandler.
func NewGearHandler(account *session.AccountStore, sync *equipsync.Adapter, logger *zap.Logger) *GearHandler {
	return &GearHandler{account: account, sync: sync, logger: logger}
}

// mirror resolves the requesting account's mirror, writing the error
// response itself on failure.
func (h *GearHandler) mirror(c *gin.Context) (*session.AccountMirror, bool) {
	m, err := h.account.Mirror(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		writeAccountError(c, err)
		return nil, false
	}
	return m, true
}

// Collection handles GET /api/gear.
func (h *GearHandler) Collection(c *gin.Context) {
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owned":     idSetSlice(m.OwnedItems()),
		"favorites": idSetSlice(m.FavoriteItems()),
		"equipped":  m.EquippedMap(),
	})
}

type favoriteRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
}

// ToggleFavorite handles POST /api/gear/favorites.
func (h *GearHandler) ToggleFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	fav, err := m.ToggleFavorite(c.Request.Context(), req.ItemID)
	if err != nil {
		writeAccountError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorite": fav})
}

type equipRequest struct {
	Slot   string `json:"slot" binding:"required"`
	ItemID int64  `json:"item_id"`
}

// Equip handles PUT /api/gear/equipment.
func (h *GearHandler) Equip(c *gin.Context) {
	var req equipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slot, err := gear.ParseSlot(req.Slot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown slot"})
		return
	}
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	if err := m.EquipItem(c.Request.Context(), slot, req.ItemID); err != nil {
		writeAccountError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"equipped": m.EquippedMap()})
}

// Frame handles GET /api/gear/frame. It returns the positional
// equipment frame consumed by legacy renderers, plus whether it changed
// since the last request for this device. The route carries
// OptionalAuth: a signed-in request projects its account, everyone
// else projects the guest session.
func (h *GearHandler) Frame(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	frame, changed, err := h.sync.Project(c.Request.Context(), deviceID, mw.GetAccountID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "frame build failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame": frame, "changed": changed})
}

// writeAccountError maps account-store errors onto HTTP status codes.
func writeAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
	case errors.Is(err, session.ErrNotOwned):
		c.JSON(http.StatusForbidden, gin.H{"error": "item not owned"})
	case errors.Is(err, session.ErrAlreadyOwned):
		c.JSON(http.StatusConflict, gin.H{"error": "item already owned"})
	case errors.Is(err, session.ErrWrongSlot):
		c.JSON(http.StatusBadRequest, gin.H{"error": "item does not fit that slot"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
