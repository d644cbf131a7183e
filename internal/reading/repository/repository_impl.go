package repository

import (
	"context"
	"time"

	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, r *readingdomain.Reading) error
	// RecentWindow returns up to limit readings for the device with
	// timestamp >= since, newest first. limit <= 0 means unbounded.
	RecentWindow(ctx context.Context, deviceID string, since time.Time, limit int) ([]readingdomain.Reading, error)
	// DailyTotalLiters sums total_consumption over [dayStart, dayStart+24h).
	DailyTotalLiters(ctx context.Context, deviceID string, dayStart time.Time) (float64, error)
	List(ctx context.Context, req readingdomain.ListReadingsRequest) ([]readingdomain.Reading, error)
	CountByDevice(ctx context.Context, deviceID string) (int64, error)
}

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, rd *readingdomain.Reading) error {
	return r.db.WithContext(ctx).Create(rd).Error
}

func (r *repo) RecentWindow(ctx context.Context, deviceID string, since time.Time, limit int) ([]readingdomain.Reading, error) {
	stmt := r.db.WithContext(ctx).
		Where("device_id = ? AND timestamp >= ?", deviceID, since.UTC()).
		Order("timestamp DESC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	var out []readingdomain.Reading
	err := stmt.Find(&out).Error
	return out, err
}

func (r *repo) DailyTotalLiters(ctx context.Context, deviceID string, dayStart time.Time) (float64, error) {
	dayStart = dayStart.UTC()
	dayEnd := dayStart.Add(24 * time.Hour)

	var total float64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_consumption), 0)
		 FROM readings
		 WHERE device_id = ? AND timestamp >= ? AND timestamp < ?`,
		deviceID,
		dayStart,
		dayEnd,
	).Scan(&total).Error
	return total, err
}

func (r *repo) List(ctx context.Context, req readingdomain.ListReadingsRequest) ([]readingdomain.Reading, error) {
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
	if req.StartDate != "" {
		start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.UTC)
		if err != nil {
			return nil, readingdomain.ErrInvalidDateFilter
		}
		stmt = stmt.Where("timestamp >= ?", start)
	}
	if req.EndDate != "" {
		end, err := time.ParseInLocation("2006-01-02", req.EndDate, time.UTC)
		if err != nil {
			return nil, readingdomain.ErrInvalidDateFilter
		}
		stmt = stmt.Where("timestamp < ?", end.Add(24*time.Hour))
	}
	if req.Limit > 0 {
		stmt = stmt.Limit(req.Limit)
	}

	var out []readingdomain.Reading
	err := stmt.Find(&out).Error
	return out, err
}

func (r *repo) CountByDevice(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&readingdomain.Reading{}).
		Where("device_id = ?", deviceID).
		Count(&count).Error
	return count, err
}
