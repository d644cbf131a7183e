// Package telemetry orchestrates the ingestion pipeline: a reading from an
// authenticated device is validated and persisted, then liveness and alert
// evaluation run best-effort against the committed row.
package telemetry

import (
	"context"
	"time"

	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	"github.com/tidewatch/aquameter/internal/clock"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	"github.com/tidewatch/aquameter/internal/metrics"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type PipelineParam struct {
	fx.In

	Log        *zap.Logger
	DeviceSvc  devicedomain.Service
	ReadingSvc readingdomain.Service
	AlertSvc   alertdomain.Service
	Clock      clock.Clock
	Metrics    *metrics.Metrics `optional:"true"`
}

// Pipeline runs the per-submission stage machine. Stages 1-2 (authenticate,
// validate+persist) are strict: any failure rejects the submission with
// nothing written. Stages 3-4 (liveness, alerting) are best-effort and are
// never surfaced to the device.
type Pipeline struct {
	log        *zap.Logger
	devicesvc  devicedomain.Service
	readingsvc readingdomain.Service
	alertsvc   alertdomain.Service
	clock      clock.Clock
	metrics    *metrics.Metrics
}

func NewPipeline(p PipelineParam) *Pipeline {
	return &Pipeline{
		log:        p.Log.Named("telemetry.pipeline"),
		devicesvc:  p.DeviceSvc,
		readingsvc: p.ReadingSvc,
		alertsvc:   p.AlertSvc,
		clock:      p.Clock,
		metrics:    p.Metrics,
	}
}

// Authenticate resolves the device key header. Stage 1. Failed credentials
// count against the ingest counter so rejected meters stay visible.
func (p *Pipeline) Authenticate(ctx context.Context, rawKey string) (*devicedomain.Device, error) {
	device, err := p.devicesvc.Authenticate(ctx, rawKey)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ReadingsIngested.WithLabelValues("unauthorized").Inc()
		}
		return nil, err
	}
	return device, nil
}

// Ingest runs stages 2-4 for an already-authenticated submission and
// returns the stored reading. No stage is retried; retry on transient
// failure is the device's responsibility for the whole request.
func (p *Pipeline) Ingest(ctx context.Context, device *devicedomain.Device, req readingdomain.CreateReadingRequest) (*readingdomain.Reading, error) {
	start := time.Now()

	stored, err := p.readingsvc.Append(ctx, req)
	if err != nil {
		p.observe("rejected", start)
		return nil, err
	}

	// Liveness is droppable under load; a failed touch never fails ingest.
	if err := p.devicesvc.Touch(ctx, device.DeviceID, p.clock.Now()); err != nil {
		p.log.Warn("liveness update skipped", zap.String("device_id", device.DeviceID), zap.Error(err))
	}

	// The reading is durably committed; evaluation reads its own write.
	if err := p.alertsvc.Evaluate(ctx, stored.DeviceID); err != nil {
		p.log.Warn("alert evaluation incomplete",
			zap.String("device_id", stored.DeviceID),
			zap.Error(err),
		)
	}

	p.log.Info("reading stored",
		zap.String("device_id", stored.DeviceID),
		zap.Float64("flow_rate", stored.FlowRate),
		zap.Float64("total_consumption", stored.TotalConsumption),
	)
	p.observe("stored", start)
	return stored, nil
}

func (p *Pipeline) observe(outcome string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.ReadingsIngested.WithLabelValues(outcome).Inc()
	p.metrics.IngestDuration.Observe(time.Since(start).Seconds())
}

var Module = fx.Module("telemetry.pipeline",
	fx.Provide(NewPipeline),
)
