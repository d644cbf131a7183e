package liveness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	alertrepo "github.com/tidewatch/aquameter/internal/alert/repository"
	alertservice "github.com/tidewatch/aquameter/internal/alert/service"
	"github.com/tidewatch/aquameter/internal/clock"
	"github.com/tidewatch/aquameter/internal/config"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	devicerepo "github.com/tidewatch/aquameter/internal/device/repository"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	readingrepo "github.com/tidewatch/aquameter/internal/reading/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type workerEnv struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	worker *Worker
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&devicedomain.Device{},
		&readingdomain.Reading{},
		&alertdomain.Alert{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_alerts_device_type_open
		 ON alerts (device_id, alert_type) WHERE NOT is_resolved`,
	).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	cfg := config.Config{
		Alerting: config.AlertingConfig{
			LeakThresholdLitersPerHour:          10,
			ExcessiveUsageThresholdLitersPerDay: 1000,
		},
		Liveness: config.LivenessConfig{
			Enabled:      true,
			OfflineAfter: time.Hour,
			PollInterval: 5 * time.Minute,
		},
	}

	devices := devicerepo.Provide(db)
	alertsvc := alertservice.NewService(alertservice.ServiceParam{
		Cfg:         cfg,
		Log:         log,
		GenID:       node,
		Repo:        alertrepo.Provide(db),
		ReadingRepo: readingrepo.Provide(db),
		DeviceRepo:  devices,
		Clock:       fake,
	})

	worker := NewWorker(Params{
		Cfg:        cfg,
		Log:        log,
		DeviceRepo: devices,
		AlertSvc:   alertsvc,
		Clock:      fake,
	})

	return &workerEnv{db: db, node: node, clock: fake, worker: worker}
}

func (e *workerEnv) seedDevice(t *testing.T, deviceID string, active bool, lastSeen *time.Time) {
	t.Helper()
	require.NoError(t, e.db.Create(&devicedomain.Device{
		DeviceID:         deviceID,
		Name:             "meter " + deviceID,
		Location:         "yard",
		OwnerID:          e.node.Generate(),
		APIKeyHash:       devicedomain.HashAPIKey("key-" + deviceID),
		PulseRate:        450,
		IsActive:         active,
		InstallationDate: e.clock.Now().Add(-60 * 24 * time.Hour),
		LastSeen:         lastSeen,
	}).Error)
}

func (e *workerEnv) offlineAlerts(t *testing.T, deviceID string) []alertdomain.Alert {
	t.Helper()
	var out []alertdomain.Alert
	require.NoError(t, e.db.
		Where("device_id = ? AND alert_type = ? AND is_resolved = ?", deviceID, alertdomain.TypeOffline, false).
		Find(&out).Error)
	return out
}

func TestRunOnce_FlagsSilentDevices(t *testing.T) {
	env := newWorkerEnv(t)
	now := env.clock.Now()

	stale := now.Add(-90 * time.Minute)
	fresh := now.Add(-10 * time.Minute)
	env.seedDevice(t, "WM-001", true, &stale)
	env.seedDevice(t, "WM-002", true, &fresh)
	env.seedDevice(t, "WM-003", false, &stale) // deactivated, not monitored
	env.seedDevice(t, "WM-004", true, nil)     // never reported, no baseline

	require.NoError(t, env.worker.RunOnce(context.Background()))

	open := env.offlineAlerts(t, "WM-001")
	require.Len(t, open, 1)
	assert.Equal(t, alertdomain.SeverityCritical, open[0].Severity)
	assert.Equal(t, "Device offline. No readings received for 90 minutes.", open[0].Message)
	assert.InDelta(t, 60, open[0].ThresholdValue, 1e-9)
	assert.InDelta(t, 90, open[0].ActualValue, 1e-9)

	assert.Empty(t, env.offlineAlerts(t, "WM-002"))
	assert.Empty(t, env.offlineAlerts(t, "WM-003"))
	assert.Empty(t, env.offlineAlerts(t, "WM-004"))
}

func TestRunOnce_RepeatedSweepsDoNotDuplicate(t *testing.T) {
	env := newWorkerEnv(t)
	stale := env.clock.Now().Add(-2 * time.Hour)
	env.seedDevice(t, "WM-005", true, &stale)

	require.NoError(t, env.worker.RunOnce(context.Background()))
	env.clock.Advance(5 * time.Minute)
	require.NoError(t, env.worker.RunOnce(context.Background()))
	env.clock.Advance(5 * time.Minute)
	require.NoError(t, env.worker.RunOnce(context.Background()))

	assert.Len(t, env.offlineAlerts(t, "WM-005"), 1)
}
