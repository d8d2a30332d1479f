package rest

import (
	"errors"
	"net/http"

	"github.com/cygirat-cmd/kiki-server/audit"
	"github.com/cygirat-cmd/kiki-server/catalog"
	"github.com/cygirat-cmd/kiki-server/config"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/receipt"
	"github.com/cygirat-cmd/kiki-server/session"
	"github.com/cygirat-cmd/kiki-server/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RewardsHandler issues and redeems signed reward receipts. Issuing
// works for guests and accounts alike; direct redemption requires a
// signed-in account, guests queue the token in their session instead.
type RewardsHandler struct {
	svc     *store.Service
	account *session.AccountStore
	catalog *catalog.Catalog
	audit   *audit.Service
	sec     config.SecurityConfig
	logger  *zap.Logger
}

// NewRewardsHandler creates a new RewardsHandler.
func NewRewardsHandler(svc *store.Service, account *session.AccountStore, cat *catalog.Catalog,
	a *audit.Service, sec config.SecurityConfig, logger *zap.Logger) *RewardsHandler {
	return &RewardsHandler{svc: svc, account: account, catalog: cat, audit: a, sec: sec, logger: logger}
}

type issueRequest struct {
	ItemID  int64  `json:"item_id" binding:"required"`
	CrateID *int64 `json:"crate_id"`
}

// Issue handles POST /api/rewards/issue. The returned token carries the
// reward until it is redeemed, which may happen much later after a
// sign-in.
func (h *RewardsHandler) Issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.catalog.Get(req.ItemID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	token, err := receipt.Issue(req.ItemID, req.CrateID, h.sec.ReceiptSecret, h.sec.ReceiptTTL)
	if err != nil {
		h.logger.Error("receipt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue failed"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		GuestID: mw.GetDeviceID(c),
		Action:  audit.ActionIssue,
		Request: req,
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type redeemRequest struct {
	Token string `json:"token" binding:"required"`
}

// Redeem handles POST /api/rewards/redeem. Redeeming the same token
// twice reports already_redeemed rather than failing.
func (h *RewardsHandler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}

	result, err := h.svc.RedeemReceipt(c.Request.Context(), accountID, req.Token, h.sec.ReceiptSecret)
	entry := audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Action:    audit.ActionRedeem,
		IP:        c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
		h.audit.Log(entry)
		if errors.Is(err, store.ErrReceiptRejected) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem failed"})
		}
		return
	}
	entry.Response = result
	h.audit.Log(entry)

	// Keep the redeeming account's mirror in step with the grant.
	if err := h.account.Load(c.Request.Context(), accountID); err != nil {
		h.logger.Warn("mirror refresh after redeem failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, result)
}
