package rest

import (
	"errors"
	"net/http"

	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OutfitHandler manages saved looks for the signed-in account.
type OutfitHandler struct {
	account *session.AccountStore
	logger  *zap.Logger
}

// NewOutfitHandler creates a new OutfitHandler.
func NewOutfitHandler(account *session.AccountStore, logger *zap.Logger) *OutfitHandler {
	return &OutfitHandler{account: account, logger: logger}
}

func (h *OutfitHandler) mirror(c *gin.Context) (*session.AccountMirror, bool) {
	m, err := h.account.Mirror(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		writeAccountError(c, err)
		return nil, false
	}
	return m, true
}

// List handles GET /api/outfits.
func (h *OutfitHandler) List(c *gin.Context) {
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	if err := m.RefreshOutfits(c.Request.Context()); err != nil {
		writeAccountError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outfits": m.Outfits()})
}

type saveOutfitRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

// Save handles POST /api/outfits. The current equipment becomes a named
// snapshot.
func (h *OutfitHandler) Save(c *gin.Context) {
	var req saveOutfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	outfit, err := m.SaveOutfit(c.Request.Context(), req.Name)
	if err != nil {
		writeAccountError(c, err)
		return
	}
	c.JSON(http.StatusOK, outfit)
}

// Load handles POST /api/outfits/:id/apply.
func (h *OutfitHandler) Load(c *gin.Context) {
	outfitID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	if err := m.LoadOutfit(c.Request.Context(), outfitID); err != nil {
		if errors.Is(err, store.ErrOutfitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "outfit not found"})
			return
		}
		writeAccountError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"equipped": m.EquippedMap()})
}

// Delete handles DELETE /api/outfits/:id.
func (h *OutfitHandler) Delete(c *gin.Context) {
	outfitID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	m, ok := h.mirror(c)
	if !ok {
		return
	}
	if err := m.DeleteOutfit(c.Request.Context(), outfitID); err != nil {
		if errors.Is(err, store.ErrOutfitNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "outfit not found"})
			return
		}
		writeAccountError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
