package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	dashboarddomain "github.com/tidewatch/aquameter/internal/dashboard/domain"
)

func (s *Server) GetDashboardStats(c *gin.Context) {
	owner := ownerFromContext(c)
	if owner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	stats, err := s.dashboardSvc.Stats(c.Request.Context(), dashboarddomain.StatsRequest{
		OwnerID:  owner.ID,
		Operator: owner.IsOperator,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
