package rest

import (
	"net/http"

	"github.com/cygirat-cmd/kiki-server/audit"
	"github.com/cygirat-cmd/kiki-server/catalog"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/model"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShopHandler exposes the item catalog and the authenticated purchase
// path.
type ShopHandler struct {
	account *session.AccountStore
	catalog *catalog.Catalog
	audit   *audit.Service
	logger  *zap.Logger
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(account *session.AccountStore, cat *catalog.Catalog, a *audit.Service, logger *zap.Logger) *ShopHandler {
	return &ShopHandler{account: account, catalog: cat, audit: a, logger: logger}
}

// Item handles GET /api/shop/items/:id.
func (h *ShopHandler) Item(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	it := h.catalog.Get(itemID)
	if it == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, it)
}

type purchaseRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
}

// Purchase handles POST /api/shop/purchase.
func (h *ShopHandler) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	it := h.catalog.Get(req.ItemID)
	if it == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}

	accountID := mw.GetAccountID(c)
	mirror, err := h.account.Mirror(c.Request.Context(), accountID)
	if err != nil {
		writeAccountError(c, err)
		return
	}

	err = mirror.PurchaseItem(c.Request.Context(), req.ItemID, model.SourceShop)
	entry := audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Action:    audit.ActionPurchase,
		Request:   req,
		IP:        c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
		h.audit.Log(entry)
		writeAccountError(c, err)
		return
	}
	h.audit.Log(entry)
	c.JSON(http.StatusOK, gin.H{"item_id": req.ItemID, "price": it.Price})
}
