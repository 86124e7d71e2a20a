package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/travelmate/internal/export"
)

func (s *Server) SaveSnapshot(c *gin.Context) {
	resp, err := s.snapshotSvc.Save(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSnapshots(c *gin.Context) {
	resp, err := s.snapshotSvc.List(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSnapshot(c *gin.Context) {
	snapshot, payload, err := s.snapshotSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"snapshot": snapshot,
		"payload":  json.RawMessage(payload),
	}})
}

// DownloadExport renders a frozen snapshot into an accounting file. The
// format query selects csv (default) or xlsx.
func (s *Server) DownloadExport(c *gin.Context) {
	snapshot, payload, err := s.snapshotSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	base := "trip_" + snapshot.TripID.String() + "_" + snapshot.GeneratedAt.Format("20060102T150405Z")

	switch format {
	case "csv":
		out, err := export.RenderCSV(payload)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+base+`.csv"`)
		c.Data(http.StatusOK, "text/csv", out)
	case "xlsx":
		out, err := export.RenderXLSX(payload)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+base+`.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", out)
	default:
		AbortWithError(c, newValidationError("format", "invalid_format", "format must be csv or xlsx"))
	}
}
