// Package liveness sweeps the fleet for devices that stopped reporting
// and opens offline alerts for them.
package liveness

import (
	"context"
	"fmt"
	"time"

	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	"github.com/tidewatch/aquameter/internal/clock"
	"github.com/tidewatch/aquameter/internal/config"
	devicerepo "github.com/tidewatch/aquameter/internal/device/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DeviceRepo devicerepo.Repository
	AlertSvc   alertdomain.Service
	Clock      clock.Clock
}

type Worker struct {
	log        *zap.Logger
	deviceRepo devicerepo.Repository
	alertSvc   alertdomain.Service
	clock      clock.Clock

	offlineAfter time.Duration
	pollInterval time.Duration
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:          p.Log.Named("liveness.worker"),
		deviceRepo:   p.DeviceRepo,
		alertSvc:     p.AlertSvc,
		clock:        p.Clock,
		offlineAfter: p.Cfg.Liveness.OfflineAfter,
		pollInterval: p.Cfg.Liveness.PollInterval,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("liveness sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce opens an offline alert for every active device whose last_seen
// predates the offline horizon. The alert upsert dedupes per device, so
// repeated sweeps while a device stays dark are no-ops.
func (w *Worker) RunOnce(ctx context.Context) error {
	now := w.clock.Now()
	stale, err := w.deviceRepo.StaleActive(ctx, now.Add(-w.offlineAfter))
	if err != nil {
		return err
	}

	for _, device := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		silentMinutes := now.Sub(device.LastSeen.UTC()).Minutes()
		created, err := w.alertSvc.Open(ctx, alertdomain.OpenRequest{
			DeviceID:       device.DeviceID,
			AlertType:      alertdomain.TypeOffline,
			Severity:       alertdomain.SeverityCritical,
			Message:        fmt.Sprintf("Device offline. No readings received for %.0f minutes.", silentMinutes),
			ThresholdValue: w.offlineAfter.Minutes(),
			ActualValue:    silentMinutes,
		})
		if err != nil {
			w.log.Warn("offline alert failed",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			continue
		}
		if created {
			w.log.Info("offline alert opened", zap.String("device_id", device.DeviceID))
		}
	}
	return nil
}

func run(lc fx.Lifecycle, cfg config.Config, w *Worker) {
	if !cfg.Liveness.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

var Module = fx.Module("liveness.worker",
	fx.Provide(NewWorker),
	fx.Invoke(run),
)
