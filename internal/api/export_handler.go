package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alcyxob/setpad/internal/service"
)

type ExportHandler struct {
	exportService service.ExportService
}

func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// Export godoc
// @Summary Export all training logs
// @Description Renders every log of the user as CSV or JSON, uploads it, and returns a temporary download link.
// @Tags Export
// @Produce json
// @Security BearerAuth
// @Param format query string false "csv (default) or json"
// @Success 201 {object} service.ExportResult
// @Failure 400 {object} gin.H "Unknown format"
// @Failure 502 {object} gin.H "Export failed"
// @Router /export [post]
func (h *ExportHandler) Export(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportCSV))))

	res, err := h.exportService.Export(c.Request.Context(), format)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
