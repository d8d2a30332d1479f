package rest

import (
	"errors"
	"net/http"

	"github.com/cygirat-cmd/kiki-server/audit"
	mw "github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/migration"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MigrationHandler exposes the guest-to-account migration. The watcher
// normally runs it on sign-in; these routes cover explicit retries and
// status checks.
type MigrationHandler struct {
	coord  *migration.Coordinator
	audit  *audit.Service
	logger *zap.Logger
}

// NewMigrationHandler creates a new MigrationHandler.
func NewMigrationHandler(coord *migration.Coordinator, a *audit.Service, logger *zap.Logger) *MigrationHandler {
	return &MigrationHandler{coord: coord, audit: a, logger: logger}
}

// Status handles GET /api/migration/status.
func (h *MigrationHandler) Status(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	pending, err := h.coord.ShouldMigrate(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status check failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

// Run handles POST /api/migration/run. Safe to call repeatedly; a run
// that finds no guest data returns an empty report.
func (h *MigrationHandler) Run(c *gin.Context) {
	deviceID := mw.GetDeviceID(c)
	accountID := mw.GetAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}

	report, err := h.coord.Run(c.Request.Context(), deviceID, accountID)

	entry := audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		GuestID:   deviceID,
		Action:    audit.ActionMigration,
		Response:  report,
		IP:        c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)

	if errors.Is(err, migration.ErrInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "migration already running"})
		return
	}
	if err != nil {
		h.logger.Error("migration run failed",
			zap.String("deviceId", deviceID),
			zap.Int64("accountId", accountID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "migration failed", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}
