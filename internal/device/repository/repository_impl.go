package repository

import (
	"context"
	"errors"
	"time"

	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	"gorm.io/gorm"
)

type Repository interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*devicedomain.Device, error)
	FindByID(ctx context.Context, deviceID string) (*devicedomain.Device, error)
	UpdateLastSeen(ctx context.Context, deviceID string, now time.Time) error
	List(ctx context.Context, req devicedomain.ListRequest) ([]devicedomain.Device, error)
	StaleActive(ctx context.Context, seenBefore time.Time) ([]devicedomain.Device, error)
}

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) FindByKeyHash(ctx context.Context, keyHash string) (*devicedomain.Device, error) {
	var device devicedomain.Device
	err := r.db.WithContext(ctx).
		Where("api_key_hash = ? AND is_active = ?", keyHash, true).
		First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *repo) FindByID(ctx context.Context, deviceID string) (*devicedomain.Device, error) {
	var device devicedomain.Device
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *repo) UpdateLastSeen(ctx context.Context, deviceID string, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE devices SET last_seen = ? WHERE device_id = ?`,
		now.UTC(),
		deviceID,
	).Error
}

func (r *repo) List(ctx context.Context, req devicedomain.ListRequest) ([]devicedomain.Device, error) {
	stmt := r.db.WithContext(ctx).Order("installation_date DESC")
	if !req.Operator {
		stmt = stmt.Where("owner_id = ?", req.OwnerID)
	}
	var out []devicedomain.Device
	err := stmt.Find(&out).Error
	return out, err
}

// StaleActive returns active devices whose last_seen predates the cutoff.
// Devices that never reported are skipped: they have no liveness baseline.
func (r *repo) StaleActive(ctx context.Context, seenBefore time.Time) ([]devicedomain.Device, error) {
	var out []devicedomain.Device
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND last_seen IS NOT NULL AND last_seen < ?", true, seenBefore.UTC()).
		Find(&out).Error
	return out, err
}
