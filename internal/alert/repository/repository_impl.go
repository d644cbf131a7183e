package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	"github.com/tidewatch/aquameter/pkg/db"
	"gorm.io/gorm"
)

type Repository interface {
	// OpenConditional inserts an unresolved alert unless one of the same
	// type is already open for the device. The conflict target is the
	// partial unique index on (device_id, alert_type) WHERE NOT is_resolved,
	// so concurrent evaluations cannot double-open.
	OpenConditional(ctx context.Context, a *alertdomain.Alert) (bool, error)
	FindByID(ctx context.Context, id snowflake.ID) (*alertdomain.Alert, error)
	// MarkResolved flips the alert to resolved iff it is still open.
	// Returns false when the row was already resolved or missing.
	MarkResolved(ctx context.Context, id snowflake.ID, by snowflake.ID, at time.Time) (bool, error)
	List(ctx context.Context, req alertdomain.ListRequest) ([]alertdomain.Alert, error)
	CountOpen(ctx context.Context, ownerID snowflake.ID, operator bool) (int64, error)
}

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) OpenConditional(ctx context.Context, a *alertdomain.Alert) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`INSERT INTO alerts (
			id, device_id, alert_type, severity, message, timestamp,
			is_resolved, resolved_at, resolved_by, threshold_value, actual_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)
		ON CONFLICT (device_id, alert_type) WHERE NOT is_resolved DO NOTHING`,
		a.ID,
		a.DeviceID,
		a.AlertType,
		a.Severity,
		a.Message,
		a.Timestamp,
		false,
		a.ThresholdValue,
		a.ActualValue,
	)
	if result.Error != nil {
		// Engines that raise a unique violation instead of resolving the
		// partial conflict target still mean the slot is occupied.
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*alertdomain.Alert, error) {
	var alert alertdomain.Alert
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *repo) MarkResolved(ctx context.Context, id snowflake.ID, by snowflake.ID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE alerts
		 SET is_resolved = ?, resolved_at = ?, resolved_by = ?
		 WHERE id = ? AND NOT is_resolved`,
		true,
		at.UTC(),
		by,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, req alertdomain.ListRequest) ([]alertdomain.Alert, error) {
	stmt := r.db.WithContext(ctx).Order("timestamp DESC")

	if !req.Operator {
		stmt = stmt.Where(
			"device_id IN (SELECT device_id FROM devices WHERE owner_id = ?)",
			req.OwnerID,
		)
	}
	if req.DeviceID != "" {
		stmt = stmt.Where("device_id = ?", req.DeviceID)
	}
	if req.Resolved != nil {
		stmt = stmt.Where("is_resolved = ?", *req.Resolved)
	}
	if req.Limit > 0 {
		stmt = stmt.Limit(req.Limit)
	}

	var out []alertdomain.Alert
	err := stmt.Find(&out).Error
	return out, err
}

func (r *repo) CountOpen(ctx context.Context, ownerID snowflake.ID, operator bool) (int64, error) {
	stmt := r.db.WithContext(ctx).
		Model(&alertdomain.Alert{}).
		Where("is_resolved = ?", false)
	if !operator {
		stmt = stmt.Where(
			"device_id IN (SELECT device_id FROM devices WHERE owner_id = ?)",
			ownerID,
		)
	}
	var count int64
	err := stmt.Count(&count).Error
	return count, err
}
