package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
)

// Stats is the read-only dashboard rollup. No side effects.
type Stats struct {
	TotalDevices          int64                   `json:"total_devices"`
	ActiveDevices         int64                   `json:"active_devices"`
	TotalConsumptionToday float64                 `json:"total_consumption_today"`
	TotalConsumptionMonth float64                 `json:"total_consumption_month"`
	ActiveAlerts          int64                   `json:"active_alerts"`
	MonthlyCost           string                  `json:"monthly_cost"`
	LatestReadings        []readingdomain.Reading `json:"latest_readings"`
	RecentAlerts          []alertdomain.Alert     `json:"recent_alerts"`
}

type StatsRequest struct {
	OwnerID  snowflake.ID
	Operator bool
}

type Service interface {
	Stats(ctx context.Context, req StatsRequest) (*Stats, error)
}
