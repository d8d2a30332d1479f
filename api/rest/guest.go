package rest

import (
	"net/http"

	"github.com/cygirat-cmd/kiki-server/gear"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GuestHandler exposes the provisional guest session over REST. All
// routes require the X-Device-ID header.
type GuestHandler struct {
	guests *session.GuestStore
	logger *zap.Logger
}

// NewGuestHandler creates a new GuestHandler.
func NewGuestHandler(guests *session.GuestStore, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{guests: guests, logger: logger}
}

// Init handles POST /api/guest/init.
func (h *GuestHandler) Init(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	guestID, err := h.guests.InitSession(c.Request.Context(), deviceID)
	if err != nil {
		h.logger.Error("guest session init failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session init failed"})
		return
	}
	if guestID == "" {
		// A migration already completed on this device; guest mode is
		// permanently closed here.
		c.JSON(http.StatusOK, gin.H{"guest_id": "", "terminal": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"guest_id": guestID, "terminal": false})
}

// State handles GET /api/guest/state.
func (h *GuestHandler) State(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	st, err := h.guests.State(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state load failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"guest_id":  st.GuestID,
		"owned":     idSetSlice(st.Owned),
		"favorites": idSetSlice(st.Favorites),
		"equipped":  st.Equipped,
		"cart":      idSetSlice(st.Cart),
		"terminal":  st.MigrationEverCompleted,
	})
}

type guestItemRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
}

// AddItem handles POST /api/guest/items.
func (h *GuestHandler) AddItem(c *gin.Context) {
	var req guestItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.guests.AddProvisionalItem(c.Request.Context(), deviceID, req.ItemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "item add failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// RemoveItem handles DELETE /api/guest/items/:id.
func (h *GuestHandler) RemoveItem(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.guests.RemoveProvisionalItem(c.Request.Context(), deviceID, itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "item remove failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// ToggleFavorite handles POST /api/guest/favorites.
func (h *GuestHandler) ToggleFavorite(c *gin.Context) {
	var req guestItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deviceID := mw.GetDeviceID(c)
	fav, err := h.guests.ToggleFavorite(c.Request.Context(), deviceID, req.ItemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "favorite toggle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorite": fav})
}

type guestEquipRequest struct {
	Slot   string `json:"slot" binding:"required"`
	ItemID int64  `json:"item_id"`
}

// Equip handles PUT /api/guest/equipment.
func (h *GuestHandler) Equip(c *gin.Context) {
	var req guestEquipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slot, err := gear.ParseSlot(req.Slot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown slot"})
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.guests.Equip(c.Request.Context(), deviceID, slot, req.ItemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "equip failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// AddToCart handles POST /api/guest/cart.
func (h *GuestHandler) AddToCart(c *gin.Context) {
	var req guestItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.guests.AddToCart(c.Request.Context(), deviceID, req.ItemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cart add failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// RemoveFromCart handles DELETE /api/guest/cart/:id.
func (h *GuestHandler) RemoveFromCart(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.guests.RemoveFromCart(c.Request.Context(), deviceID, itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cart remove failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

type guestReceiptRequest struct {
	Type  string `json:"type" binding:"required"`
	Token string `json:"token" binding:"required"`
}

// QueueReceipt handles POST /api/guest/receipts.
func (h *GuestHandler) QueueReceipt(c *gin.Context) {
	var req guestReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.guests.AddReceipt(c.Request.Context(), deviceID, req.Type, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "receipt queue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// Receipts handles GET /api/guest/receipts.
func (h *GuestHandler) Receipts(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	receipts, err := h.guests.Receipts(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "receipt load failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}
