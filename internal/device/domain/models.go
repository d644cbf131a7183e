// Package domain contains the device registry models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Device is a provisioned water meter. The API key is stored hashed;
// the raw key is only ever seen at provisioning time.
type Device struct {
	DeviceID         string       `json:"device_id" gorm:"column:device_id;primaryKey;type:text"`
	Name             string       `json:"name" gorm:"type:text;not null"`
	Location         string       `json:"location" gorm:"type:text;not null"`
	OwnerID          snowflake.ID `json:"owner_id" gorm:"column:owner_id;not null;index"`
	APIKeyHash       string       `json:"-" gorm:"column:api_key_hash;type:text;not null;uniqueIndex"`
	PulseRate        float64      `json:"pulse_rate" gorm:"column:pulse_rate;not null;default:450"`
	IsActive         bool         `json:"is_active" gorm:"column:is_active;not null;default:true"`
	InstallationDate time.Time    `json:"installation_date" gorm:"column:installation_date;not null"`
	LastSeen         *time.Time   `json:"last_seen" gorm:"column:last_seen"`
}

// TableName sets the database table name.
func (Device) TableName() string { return "devices" }

type Service interface {
	// Authenticate resolves a raw API key to an active device. Unknown keys
	// and deactivated devices are indistinguishable to the caller.
	Authenticate(ctx context.Context, rawKey string) (*Device, error)
	// Touch records device liveness. Best effort: errors are returned for
	// logging but must never fail the caller's request.
	Touch(ctx context.Context, deviceID string, now time.Time) error
	// GetActive returns the device if it exists and is active.
	GetActive(ctx context.Context, deviceID string) (*Device, error)
	List(ctx context.Context, req ListRequest) ([]Device, error)
}

type ListRequest struct {
	OwnerID  snowflake.ID
	Operator bool
}

var (
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrDeviceNotFound    = errors.New("device_not_found")
	ErrDeviceInactive    = errors.New("device_inactive")
)
