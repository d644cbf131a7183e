package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
)

func (s *Server) ListDevices(c *gin.Context) {
	owner := ownerFromContext(c)
	if owner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	devices, err := s.deviceSvc.List(c.Request.Context(), devicedomain.ListRequest{
		OwnerID:  owner.ID,
		Operator: owner.IsOperator,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}
