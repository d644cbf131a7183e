package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
)

// IngestReading accepts one telemetry sample from an authenticated meter.
// The body's device_id must match the device the key resolved to; a meter
// cannot submit on behalf of another.
func (s *Server) IngestReading(c *gin.Context) {
	device := deviceFromContext(c)
	if device == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req readingdomain.CreateReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if strings.TrimSpace(req.DeviceID) != device.DeviceID {
		AbortWithError(c, readingdomain.ErrInvalidDeviceID)
		return
	}

	stored, err := s.pipeline.Ingest(c.Request.Context(), device, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, stored)
}
