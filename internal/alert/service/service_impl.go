package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	"github.com/tidewatch/aquameter/internal/alert/repository"
	"github.com/tidewatch/aquameter/internal/clock"
	"github.com/tidewatch/aquameter/internal/config"
	devicerepo "github.com/tidewatch/aquameter/internal/device/repository"
	"github.com/tidewatch/aquameter/internal/metrics"
	readingrepo "github.com/tidewatch/aquameter/internal/reading/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	leakWindow     = time.Hour
	leakSampleSize = 6
)

type ServiceParam struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        repository.Repository
	ReadingRepo readingrepo.Repository
	DeviceRepo  devicerepo.Repository
	Clock       clock.Clock
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	genID       *snowflake.Node
	repo        repository.Repository
	readingRepo readingrepo.Repository
	deviceRepo  devicerepo.Repository
	clock       clock.Clock
	metrics     *metrics.Metrics

	leakThresholdPerHour float64
	dailyThreshold       float64
	evalTimeout          time.Duration
}

func NewService(p ServiceParam) alertdomain.Service {
	return &Service{
		log:         p.Log.Named("alert.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		readingRepo: p.ReadingRepo,
		deviceRepo:  p.DeviceRepo,
		clock:       p.Clock,
		metrics:     p.Metrics,

		leakThresholdPerHour: p.Cfg.Alerting.LeakThresholdLitersPerHour,
		dailyThreshold:       p.Cfg.Alerting.ExcessiveUsageThresholdLitersPerDay,
		evalTimeout:          p.Cfg.Alerting.EvalTimeout,
	}
}

// Evaluate runs both heuristics against committed readings for the device.
// A failure in one heuristic does not block the other. The whole pass is
// bounded by the configured deadline; on expiry it degrades to skipped.
func (s *Service) Evaluate(ctx context.Context, deviceID string) error {
	if s.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.evalTimeout)
		defer cancel()
	}

	var evalErr error
	if err := s.evaluateLeak(ctx, deviceID); err != nil {
		evalErr = errors.Join(evalErr, fmt.Errorf("leak: %w", err))
	}
	if err := s.evaluateExcessive(ctx, deviceID); err != nil {
		evalErr = errors.Join(evalErr, fmt.Errorf("excessive: %w", err))
	}
	return evalErr
}

// evaluateLeak fires when the most recent six readings inside the trailing
// hour average above the per-minute leak threshold. Fewer than six readings
// is inconclusive, not a leak.
func (s *Service) evaluateLeak(ctx context.Context, deviceID string) error {
	now := s.clock.Now()
	readings, err := s.readingRepo.RecentWindow(ctx, deviceID, now.Add(-leakWindow), leakSampleSize)
	if err != nil {
		return err
	}
	if len(readings) < leakSampleSize {
		return nil
	}

	var sum float64
	for _, r := range readings {
		sum += r.FlowRate
	}
	avgFlow := sum / float64(len(readings))
	threshold := s.leakThresholdPerHour / 60

	if avgFlow <= threshold {
		return nil
	}

	created, err := s.Open(ctx, alertdomain.OpenRequest{
		DeviceID:       deviceID,
		AlertType:      alertdomain.TypeLeak,
		Severity:       alertdomain.SeverityHigh,
		Message:        fmt.Sprintf("Potential leak detected. Continuous flow of %.2f L/min for over 1 hour.", avgFlow),
		ThresholdValue: threshold,
		ActualValue:    avgFlow,
	})
	if err != nil {
		return err
	}
	if created {
		s.log.Info("leak alert opened",
			zap.String("device_id", deviceID),
			zap.Float64("avg_flow", avgFlow),
		)
	}
	return nil
}

// evaluateExcessive fires when the device's same-UTC-day consumption total
// exceeds the configured daily ceiling.
func (s *Service) evaluateExcessive(ctx context.Context, deviceID string) error {
	now := s.clock.Now()
	daily, err := s.readingRepo.DailyTotalLiters(ctx, deviceID, now.Truncate(24*time.Hour))
	if err != nil {
		return err
	}
	if daily <= s.dailyThreshold {
		return nil
	}

	created, err := s.Open(ctx, alertdomain.OpenRequest{
		DeviceID:       deviceID,
		AlertType:      alertdomain.TypeExcessive,
		Severity:       alertdomain.SeverityMedium,
		Message:        fmt.Sprintf("Excessive water usage detected. Daily consumption: %.2f liters.", daily),
		ThresholdValue: s.dailyThreshold,
		ActualValue:    daily,
	})
	if err != nil {
		return err
	}
	if created {
		s.log.Info("excessive usage alert opened",
			zap.String("device_id", deviceID),
			zap.Float64("daily_liters", daily),
		)
	}
	return nil
}

func (s *Service) Open(ctx context.Context, req alertdomain.OpenRequest) (bool, error) {
	alert := &alertdomain.Alert{
		ID:             s.genID.Generate(),
		DeviceID:       req.DeviceID,
		AlertType:      req.AlertType,
		Severity:       req.Severity,
		Message:        req.Message,
		Timestamp:      s.clock.Now(),
		ThresholdValue: req.ThresholdValue,
		ActualValue:    req.ActualValue,
	}
	created, err := s.repo.OpenConditional(ctx, alert)
	if err != nil {
		return false, err
	}
	if created && s.metrics != nil {
		s.metrics.AlertsOpened.WithLabelValues(string(req.AlertType)).Inc()
	}
	return created, nil
}

func (s *Service) Resolve(ctx context.Context, req alertdomain.ResolveRequest) (*alertdomain.Alert, error) {
	if req.AlertID == 0 {
		return nil, alertdomain.ErrInvalidAlertID
	}

	existing, err := s.repo.FindByID(ctx, req.AlertID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, alertdomain.ErrAlertNotFound
	}
	if !req.Operator {
		device, err := s.deviceRepo.FindByID(ctx, existing.DeviceID)
		if err != nil {
			return nil, err
		}
		if device == nil || device.OwnerID != req.OwnerID {
			return nil, alertdomain.ErrAlertNotFound
		}
	}

	resolved, err := s.repo.MarkResolved(ctx, req.AlertID, req.ResolvedBy, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, alertdomain.ErrAlreadyResolved
	}
	return s.repo.FindByID(ctx, req.AlertID)
}

func (s *Service) List(ctx context.Context, req alertdomain.ListRequest) ([]alertdomain.Alert, error) {
	return s.repo.List(ctx, req)
}
