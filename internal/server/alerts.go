package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
)

func (s *Server) ListAlerts(c *gin.Context) {
	owner := ownerFromContext(c)
	if owner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req := alertdomain.ListRequest{
		OwnerID:  owner.ID,
		Operator: owner.IsOperator,
		DeviceID: strings.TrimSpace(c.Query("device_id")),
		Limit:    parseLimit(c.Query("limit")),
	}

	if raw := strings.TrimSpace(c.Query("resolved")); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.Resolved = &resolved
	}

	alerts, err := s.alertSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) ResolveAlert(c *gin.Context) {
	owner := ownerFromContext(c)
	if owner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	alertID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, alertdomain.ErrInvalidAlertID)
		return
	}

	resolved, err := s.alertSvc.Resolve(c.Request.Context(), alertdomain.ResolveRequest{
		AlertID:    alertID,
		ResolvedBy: owner.ID,
		Operator:   owner.IsOperator,
		OwnerID:    owner.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolved)
}
