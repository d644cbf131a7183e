package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *Server) ListReadings(c *gin.Context) {
	owner := ownerFromContext(c)
	if owner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req := readingdomain.ListReadingsRequest{
		OwnerID:   owner.ID,
		Operator:  owner.IsOperator,
		DeviceID:  strings.TrimSpace(c.Query("device_id")),
		StartDate: strings.TrimSpace(c.Query("start_date")),
		EndDate:   strings.TrimSpace(c.Query("end_date")),
		Limit:     parseLimit(c.Query("limit")),
	}

	readings, err := s.readingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"readings": readings,
		"count":    len(readings),
	})
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
