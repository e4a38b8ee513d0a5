package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/engine"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// httpStatus maps an error code onto a response status.
func httpStatus(code appErrors.Code) int {
	switch code {
	case appErrors.CodeBusy:
		return http.StatusConflict
	case appErrors.CodeCancelled:
		return http.StatusGatewayTimeout
	}
	switch appErrors.KindOf(code) {
	case appErrors.CodeNotFound:
		return http.StatusNotFound
	case appErrors.CodeValidation:
		return http.StatusBadRequest
	case appErrors.CodeNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	code := appErrors.CodeOf(err)
	c.JSON(httpStatus(code), gin.H{"error": err.Error(), "code": code})
}

func writeResult(c *gin.Context, res engine.Result) {
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(httpStatus(res.Code), res)
}

// StatusHandler serves the installation status and version check.
type StatusHandler struct {
	updater *updater.Updater
}

// Status returns the local status without contacting the repository.
func (h *StatusHandler) Status(c *gin.Context) {
	st, err := h.updater.Status()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Check compares the installation against the repository.
func (h *StatusHandler) Check(c *gin.Context) {
	st, err := h.updater.Check(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current":          st.Current,
		"latest":           st.Latest,
		"update_available": st.UpdateAvailable,
		"message":          st.Message(),
	})
}

// ChangelogHandler serves the changelog entry list and release sections.
type ChangelogHandler struct {
	updater *updater.Updater
}

// List returns the cached entry list.
func (h *ChangelogHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.updater.Changelog().Entries(c.Request.Context())})
}

// Refresh drops the cached list and returns a fresh one.
func (h *ChangelogHandler) Refresh(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.updater.Changelog().Refresh(c.Request.Context())})
}

// Details returns one release section as HTML and markdown.
func (h *ChangelogHandler) Details(c *gin.Context) {
	version := c.Param("version")
	svc := h.updater.Changelog()
	ctx := c.Request.Context()

	markdown, found := svc.Markdown(ctx, version)
	c.JSON(http.StatusOK, gin.H{
		"version":  version,
		"found":    found,
		"html":     svc.Details(ctx, version),
		"markdown": markdown,
	})
}

// OperationHandler runs update and revert and lists their history.
type OperationHandler struct {
	updater *updater.Updater
}

// Update runs an update.
func (h *OperationHandler) Update(c *gin.Context) {
	writeResult(c, h.updater.Update(c.Request.Context()))
}

// Revert restores the backup slot.
func (h *OperationHandler) Revert(c *gin.Context) {
	writeResult(c, h.updater.Revert(c.Request.Context()))
}

// History lists recorded operations, newest first.
func (h *OperationHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be between 1 and " + strconv.Itoa(maxHistoryLimit),
				"code":  appErrors.CodeValidation,
			})
			return
		}
		limit = n
	}

	ops, err := h.updater.History(limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}
