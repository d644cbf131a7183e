// Package domain contains alert models and lifecycle contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type AlertType string

const (
	TypeLeak        AlertType = "leak"
	TypeExcessive   AlertType = "excessive"
	TypeOffline     AlertType = "offline"
	TypeMaintenance AlertType = "maintenance"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert records an open or resolved condition on a device. At most one
// unresolved alert may exist per (device, alert_type); the partial unique
// index ux_alerts_device_type_open enforces it at the store.
type Alert struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	DeviceID       string        `json:"device_id" gorm:"column:device_id;type:text;not null;index"`
	AlertType      AlertType     `json:"alert_type" gorm:"column:alert_type;type:text;not null"`
	Severity       Severity      `json:"severity" gorm:"type:text;not null"`
	Message        string        `json:"message" gorm:"type:text;not null"`
	Timestamp      time.Time     `json:"timestamp" gorm:"not null"`
	IsResolved     bool          `json:"is_resolved" gorm:"column:is_resolved;not null;default:false"`
	ResolvedAt     *time.Time    `json:"resolved_at" gorm:"column:resolved_at"`
	ResolvedBy     *snowflake.ID `json:"resolved_by" gorm:"column:resolved_by"`
	ThresholdValue float64       `json:"threshold_value" gorm:"column:threshold_value;not null"`
	ActualValue    float64       `json:"actual_value" gorm:"column:actual_value;not null"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }

// OpenRequest asks for an unresolved alert of the given type. The open is
// an idempotent conditional insert: if one is already open for the device
// and type, nothing is written.
type OpenRequest struct {
	DeviceID       string
	AlertType      AlertType
	Severity       Severity
	Message        string
	ThresholdValue float64
	ActualValue    float64
}

type ResolveRequest struct {
	AlertID    snowflake.ID
	ResolvedBy snowflake.ID
	Operator   bool
	OwnerID    snowflake.ID
}

type ListRequest struct {
	OwnerID  snowflake.ID
	Operator bool
	Resolved *bool
	DeviceID string
	Limit    int
}

type Service interface {
	// Evaluate runs the leak and excessive-usage heuristics for one device.
	// Heuristic failures are independent; the returned error is for logging
	// only and must never fail ingestion.
	Evaluate(ctx context.Context, deviceID string) error
	// Open upserts an unresolved alert. Returns true when a new alert row
	// was created, false when one of the type was already open.
	Open(ctx context.Context, req OpenRequest) (bool, error)
	Resolve(ctx context.Context, req ResolveRequest) (*Alert, error)
	List(ctx context.Context, req ListRequest) ([]Alert, error)
}

var (
	ErrAlertNotFound   = errors.New("alert_not_found")
	ErrAlreadyResolved = errors.New("alert_already_resolved")
	ErrInvalidAlertID  = errors.New("invalid_alert_id")
)
