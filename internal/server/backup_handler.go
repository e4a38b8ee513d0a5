package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

// BackupHandler manages the backup slot.
type BackupHandler struct {
	updater *updater.Updater
}

// Get describes the backup slot.
func (h *BackupHandler) Get(c *gin.Context) {
	b, ok := h.updater.Backups().Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "backup file not found",
			"code":  appErrors.CodeNoBackupAvailable,
		})
		return
	}
	c.JSON(http.StatusOK, b)
}

// Create replaces the backup slot with the current installation.
func (h *BackupHandler) Create(c *gin.Context) {
	writeResult(c, h.updater.Backup(c.Request.Context()))
}

// Delete removes the backup slot.
func (h *BackupHandler) Delete(c *gin.Context) {
	writeResult(c, h.updater.DeleteBackup(c.Request.Context()))
}

// Download streams the backup archive as an attachment.
func (h *BackupHandler) Download(c *gin.Context) {
	backups := h.updater.Backups()
	rc, b, err := backups.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, b.Size, "application/zip", rc, map[string]string{
		"Content-Disposition": `attachment; filename="` + backups.ExportName(b) + `"`,
	})
}

// SafetyCopies lists pre-revert safety copies.
func (h *BackupHandler) SafetyCopies(c *gin.Context) {
	copies, err := h.updater.Backups().ListSafetyCopies()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"safety_copies": copies})
}
