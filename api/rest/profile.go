package rest

import (
	"encoding/json"
	"io"
	"net/http"

	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/profile"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileHandler handles local profile snapshots and their sync to the
// account record.
type ProfileHandler struct {
	syncer *profile.Syncer
	logger *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(syncer *profile.Syncer, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{syncer: syncer, logger: logger}
}

// SaveLocal handles PUT /api/profile/local. The body is an opaque JSON
// document kept per device until sync.
func (h *ProfileHandler) SaveLocal(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read failed"})
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.syncer.SaveLocal(c.Request.Context(), deviceID, body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "saved"})
}

// Sync handles POST /api/profile/sync.
func (h *ProfileHandler) Sync(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	deviceID := mw.GetDeviceID(c)
	if err := h.syncer.SyncProfile(c.Request.Context(), accountID, deviceID); err != nil {
		h.logger.Error("profile sync failed",
			zap.Int64("accountId", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "synced"})
}

// Fetch handles GET /api/profile.
func (h *ProfileHandler) Fetch(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	data, err := h.syncer.Fetch(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}
	if data == nil {
		c.JSON(http.StatusOK, gin.H{"profile": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": json.RawMessage(data)})
}
