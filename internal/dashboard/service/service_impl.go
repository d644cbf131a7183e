package service

import (
	"context"
	"time"

	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	alertrepo "github.com/tidewatch/aquameter/internal/alert/repository"
	"github.com/tidewatch/aquameter/internal/billing"
	"github.com/tidewatch/aquameter/internal/clock"
	dashboarddomain "github.com/tidewatch/aquameter/internal/dashboard/domain"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	latestReadingsLimit = 10
	recentAlertsLimit   = 5
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	AlertRepo  alertrepo.Repository
	Calculator *billing.Calculator
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	alertRepo  alertrepo.Repository
	calculator *billing.Calculator
	clock      clock.Clock
}

func NewService(p ServiceParam) dashboarddomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dashboard.service"),
		alertRepo:  p.AlertRepo,
		calculator: p.Calculator,
		clock:      p.Clock,
	}
}

func (s *Service) Stats(ctx context.Context, req dashboarddomain.StatsRequest) (*dashboarddomain.Stats, error) {
	now := s.clock.Now()
	dayStart := now.Truncate(24 * time.Hour)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	total, active, err := s.deviceCounts(ctx, req)
	if err != nil {
		return nil, err
	}

	todayLiters, err := s.consumptionSince(ctx, req, dayStart)
	if err != nil {
		return nil, err
	}
	monthLiters, err := s.consumptionSince(ctx, req, monthStart)
	if err != nil {
		return nil, err
	}

	openAlerts, err := s.alertRepo.CountOpen(ctx, req.OwnerID, req.Operator)
	if err != nil {
		return nil, err
	}

	latest, err := s.latestReadings(ctx, req)
	if err != nil {
		return nil, err
	}
	recent, err := s.alertRepo.List(ctx, alertdomain.ListRequest{
		OwnerID:  req.OwnerID,
		Operator: req.Operator,
		Limit:    recentAlertsLimit,
	})
	if err != nil {
		return nil, err
	}

	return &dashboarddomain.Stats{
		TotalDevices:          total,
		ActiveDevices:         active,
		TotalConsumptionToday: todayLiters,
		TotalConsumptionMonth: monthLiters,
		ActiveAlerts:          openAlerts,
		MonthlyCost:           billing.FormatMicros(s.calculator.CostMicros(monthLiters)),
		LatestReadings:        latest,
		RecentAlerts:          recent,
	}, nil
}

func (s *Service) deviceCounts(ctx context.Context, req dashboarddomain.StatsRequest) (total, active int64, err error) {
	var row struct {
		Total  int64 `gorm:"column:total"`
		Active int64 `gorm:"column:active"`
	}
	query := `SELECT COUNT(*) AS total,
	       COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active
	 FROM devices`
	stmt := s.db.WithContext(ctx)
	if req.Operator {
		err = stmt.Raw(query).Scan(&row).Error
	} else {
		err = stmt.Raw(query+` WHERE owner_id = ?`, req.OwnerID).Scan(&row).Error
	}
	return row.Total, row.Active, err
}

func (s *Service) consumptionSince(ctx context.Context, req dashboarddomain.StatsRequest, since time.Time) (float64, error) {
	var total float64
	query := `SELECT COALESCE(SUM(total_consumption), 0) FROM readings WHERE timestamp >= ?`
	args := []any{since.UTC()}
	if !req.Operator {
		query += ` AND device_id IN (SELECT device_id FROM devices WHERE owner_id = ?)`
		args = append(args, req.OwnerID)
	}
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&total).Error
	return total, err
}

func (s *Service) latestReadings(ctx context.Context, req dashboarddomain.StatsRequest) ([]readingdomain.Reading, error) {
	stmt := s.db.WithContext(ctx).Order("timestamp DESC").Limit(latestReadingsLimit)
	if !req.Operator {
		stmt = stmt.Where(
			"device_id IN (SELECT device_id FROM devices WHERE owner_id = ?)",
			req.OwnerID,
		)
	}
	var out []readingdomain.Reading
	if err := stmt.Find(&out).Error; err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Cost = billing.FormatMicros(out[i].CostMicros)
	}
	return out, nil
}
