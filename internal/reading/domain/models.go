// Package domain contains persistence models for meter readings.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reading stores a single telemetry sample from a water meter.
// Rows are immutable once written; cost and daily_consumption are derived
// synchronously at write time.
type Reading struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	DeviceID         string       `json:"device_id" gorm:"column:device_id;type:text;not null;index:ix_readings_device_ts,priority:1"`
	Timestamp        time.Time    `json:"timestamp" gorm:"not null;index:ix_readings_device_ts,priority:2,sort:desc"`
	FlowRate         float64      `json:"flow_rate" gorm:"column:flow_rate;not null"`
	TotalConsumption float64      `json:"total_consumption" gorm:"column:total_consumption;not null"`
	PulseCount       int64        `json:"pulse_count" gorm:"column:pulse_count;not null"`
	DailyConsumption float64      `json:"daily_consumption" gorm:"column:daily_consumption;not null"`
	CostMicros       int64        `json:"cost_micros" gorm:"column:cost_micros;not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`

	// Cost is the display form of CostMicros, filled by the service.
	Cost string `json:"cost" gorm:"-"`
}

// TableName sets the database table name.
func (Reading) TableName() string { return "readings" }

type CreateReadingRequest struct {
	DeviceID         string    `json:"device_id" binding:"required"`
	FlowRate         *float64  `json:"flow_rate" binding:"required"`
	TotalConsumption *float64  `json:"total_consumption" binding:"required"`
	PulseCount       *int64    `json:"pulse_count" binding:"required"`
	Timestamp        time.Time `json:"timestamp"`
}

type ListReadingsRequest struct {
	OwnerID   snowflake.ID
	Operator  bool
	DeviceID  string
	StartDate string
	EndDate   string
	Limit     int
}

type Service interface {
	// Append validates and durably stores one reading, returning the stored
	// record with server-assigned identity and derived cost. Either the row
	// is fully written or nothing is.
	Append(ctx context.Context, req CreateReadingRequest) (*Reading, error)
	List(ctx context.Context, req ListReadingsRequest) ([]Reading, error)
}

var (
	ErrInvalidDeviceID    = errors.New("invalid_device_id")
	ErrInvalidFlowRate    = errors.New("invalid_flow_rate")
	ErrInvalidConsumption = errors.New("invalid_total_consumption")
	ErrInvalidPulseCount  = errors.New("invalid_pulse_count")
	ErrInvalidTimestamp   = errors.New("invalid_timestamp")
	ErrInvalidDateFilter  = errors.New("invalid_date_filter")
	ErrStoreUnavailable   = errors.New("store_unavailable")
)
