package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tidewatch/aquameter/internal/billing"
	"github.com/tidewatch/aquameter/internal/clock"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	"github.com/tidewatch/aquameter/internal/reading/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Explicit timestamps may lead the server clock by at most this much.
const maxTimestampSkew = 5 * time.Minute

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       repository.Repository
	DeviceSvc  devicedomain.Service
	Calculator *billing.Calculator
	Clock      clock.Clock
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	repo       repository.Repository
	devicesvc  devicedomain.Service
	calculator *billing.Calculator
	clock      clock.Clock
}

func NewService(p ServiceParam) readingdomain.Service {
	return &Service{
		log:        p.Log.Named("reading.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		devicesvc:  p.DeviceSvc,
		calculator: p.Calculator,
		clock:      p.Clock,
	}
}

func (s *Service) Append(ctx context.Context, req readingdomain.CreateReadingRequest) (*readingdomain.Reading, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return nil, readingdomain.ErrInvalidDeviceID
	}
	if err := validateReading(req); err != nil {
		return nil, err
	}

	// Rejects both unknown and deactivated devices before anything is written.
	if _, err := s.devicesvc.GetActive(ctx, deviceID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	} else if timestamp.After(now.Add(maxTimestampSkew)) {
		// Meter clocks drift, but a sample from the future would land in
		// the wrong billing day.
		return nil, readingdomain.ErrInvalidTimestamp
	}
	timestamp = timestamp.UTC()

	priorDaily, err := s.repo.DailyTotalLiters(ctx, deviceID, timestamp.Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", readingdomain.ErrStoreUnavailable, err)
	}

	record := &readingdomain.Reading{
		ID:               s.genID.Generate(),
		DeviceID:         deviceID,
		Timestamp:        timestamp,
		FlowRate:         *req.FlowRate,
		TotalConsumption: *req.TotalConsumption,
		PulseCount:       *req.PulseCount,
		DailyConsumption: priorDaily + *req.TotalConsumption,
		CostMicros:       s.calculator.CostMicros(*req.TotalConsumption),
		CreatedAt:        now,
	}

	if err := s.repo.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", readingdomain.ErrStoreUnavailable, err)
	}

	record.Cost = billing.FormatMicros(record.CostMicros)
	return record, nil
}

func (s *Service) List(ctx context.Context, req readingdomain.ListReadingsRequest) ([]readingdomain.Reading, error) {
	items, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Cost = billing.FormatMicros(items[i].CostMicros)
	}
	return items, nil
}

func validateReading(req readingdomain.CreateReadingRequest) error {
	if req.FlowRate == nil || math.IsNaN(*req.FlowRate) || math.IsInf(*req.FlowRate, 0) || *req.FlowRate < 0 {
		return readingdomain.ErrInvalidFlowRate
	}
	if req.TotalConsumption == nil || math.IsNaN(*req.TotalConsumption) || math.IsInf(*req.TotalConsumption, 0) || *req.TotalConsumption < 0 {
		return readingdomain.ErrInvalidConsumption
	}
	if req.PulseCount == nil || *req.PulseCount < 0 {
		return readingdomain.ErrInvalidPulseCount
	}
	return nil
}
