package http

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/api/middleware"
	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/localwebapp/internal/shared/paths"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// Handlers serves the host status API and app content
type Handlers struct {
	runtime *host.Runtime
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates the HTTP handlers
func NewHandlers(runtime *host.Runtime, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		runtime: runtime,
		metrics: metrics,
		logger:  logging.OrNop(logger),
	}
}

// Health reports liveness and a metrics snapshot
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "apps": len(h.runtime.List())}
	if h.metrics != nil {
		body["metrics"] = h.metrics.GetSnapshot()
	}
	c.JSON(http.StatusOK, body)
}

// ListApps returns the status of every known application
func (h *Handlers) ListApps(c *gin.Context) {
	apps := h.runtime.List()
	c.JSON(http.StatusOK, gin.H{"apps": apps, "count": len(apps)})
}

// GetApp returns one application's status and, once loaded, its manifest
func (h *Handlers) GetApp(c *gin.Context) {
	appID := c.Param("id")
	status := h.runtime.Status(appID)
	if status.State == types.StateUnloaded {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not found", "id": appID})
		return
	}

	body := gin.H{"status": status}
	if handle, ok := h.runtime.Handle(appID); ok {
		body["manifest"] = handle.Manifest
		if reg, ok := h.runtime.Registry(appID); ok {
			body["capabilities"] = reg.List()
		}
	}
	c.JSON(http.StatusOK, body)
}

// CheckUpdate asks the update feed for a newer version of the app
func (h *Handlers) CheckUpdate(c *gin.Context) {
	appID := c.Param("id")

	candidate, err := h.runtime.CheckForUpdate(c.Request.Context(), appID)
	switch {
	case errors.Is(err, host.ErrNotLoaded):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, host.ErrNoUpdateSource):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Warn("update check failed", logging.AppID(appID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if candidate == nil {
		c.JSON(http.StatusOK, gin.H{"update_available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"update_available": true, "manifest": candidate})
}

// ServeContent serves a file from a loaded app's content directory.
// The root path serves the manifest entry document.
func (h *Handlers) ServeContent(c *gin.Context) {
	appID := c.Param("id")
	handle, ok := h.runtime.Handle(appID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "app not loaded", "id": appID})
		return
	}

	rel := strings.TrimPrefix(c.Param("path"), "/")
	if rel == "" {
		rel = handle.Manifest.EntryDocument()
	}

	full, err := paths.Resolve(handle.ContentDirectory, rel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}
	f, err := os.Open(full)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "path": rel})
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "path": rel})
		return
	}

	c.Header(middleware.VerifiedHeader, strconv.FormatBool(handle.IsVerified))
	c.Header("Content-Type", contentType(full))
	// ServeContent, unlike ServeFile, does not redirect */index.html
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

// contentType prefers the extension table and sniffs content otherwise
func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
