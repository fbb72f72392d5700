package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	syncsvc "transaction-sync-backend/internal/services/sync"
)

// SyncService is the slice of the scheduler the HTTP layer drives.
type SyncService interface {
	RunCycle(ctx context.Context) (*syncsvc.CycleSummary, error)
	RunBackfill(ctx context.Context) ([]syncsvc.BackfillResult, error)
	Running() bool
}

// StatusInfo is the static description the status endpoint reports.
type StatusInfo struct {
	ExternalCron bool
	Interval     time.Duration
	Sources      []string
}

type SyncHandler struct {
	service SyncService
	secret  string
	status  StatusInfo
	logger  *zap.Logger
}

func NewSyncHandler(service SyncService, secret string, status StatusInfo, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{service: service, secret: secret, status: status, logger: logger}
}

// TriggerCron handles the external-scheduler trigger. It requires the shared
// bearer secret and is otherwise identical to a scheduled run.
func (h *SyncHandler) TriggerCron(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success":   false,
			"error":     "unauthorized",
			"timestamp": timestamp(),
		})
		return
	}
	h.runCycle(c)
}

// TriggerManual handles an on-demand sync request.
func (h *SyncHandler) TriggerManual(c *gin.Context) {
	h.runCycle(c)
}

func (h *SyncHandler) runCycle(c *gin.Context) {
	summary, err := h.service.RunCycle(c.Request.Context())
	if errors.Is(err, syncsvc.ErrSyncBusy) {
		c.JSON(http.StatusConflict, gin.H{
			"success":   false,
			"error":     "a sync cycle is already running",
			"timestamp": timestamp(),
		})
		return
	}
	if err != nil {
		h.logger.Error("triggered sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"timestamp": timestamp(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "sync completed successfully",
		"summary":   summary,
		"timestamp": timestamp(),
	})
}

// Status reports how the scheduler is driven. Purely descriptive.
func (h *SyncHandler) Status(c *gin.Context) {
	mode := "integrated"
	message := "sync runs on the built-in interval timer"
	if h.status.ExternalCron {
		mode = "external"
		message = "sync is driven by an external scheduler calling the trigger endpoint"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   message,
		"mode":      mode,
		"schedule":  fmt.Sprintf("every %s", h.status.Interval),
		"sources":   h.status.Sources,
		"running":   h.service.Running(),
		"timestamp": timestamp(),
	})
}

// Backfill fills missing amounts across all sources. Secret-protected: it
// generates far more upstream traffic than a normal cycle.
func (h *SyncHandler) Backfill(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success":   false,
			"error":     "unauthorized",
			"timestamp": timestamp(),
		})
		return
	}
	results, err := h.service.RunBackfill(c.Request.Context())
	if errors.Is(err, syncsvc.ErrSyncBusy) {
		c.JSON(http.StatusConflict, gin.H{
			"success":   false,
			"error":     "a sync cycle is already running",
			"timestamp": timestamp(),
		})
		return
	}
	if err != nil {
		h.logger.Error("backfill failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"error":     err.Error(),
			"results":   results,
			"timestamp": timestamp(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "backfill completed",
		"results":   results,
		"timestamp": timestamp(),
	})
}

func (h *SyncHandler) authorized(c *gin.Context) bool {
	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && token == h.secret
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
