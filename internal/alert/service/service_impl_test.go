package service

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
	"github.com/tidewatch/aquameter/internal/clock"
	"github.com/tidewatch/aquameter/internal/config"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	devicerepo "github.com/tidewatch/aquameter/internal/device/repository"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	readingrepo "github.com/tidewatch/aquameter/internal/reading/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	svc     alertdomain.Service
	alerts  alertrepo.Repository
	devices devicerepo.Repository
	reads   readingrepo.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&devicedomain.Device{},
		&readingdomain.Reading{},
		&alertdomain.Alert{},
	))
	// AutoMigrate cannot express the partial unique index the conditional
	// insert targets, so the tests create it the way the migration does.
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

	alerts := alertrepo.Provide(db)
	devices := devicerepo.Provide(db)
	reads := readingrepo.Provide(db)

	cfg := config.Config{
		Alerting: config.AlertingConfig{
			LeakThresholdLitersPerHour:          10,
			ExcessiveUsageThresholdLitersPerDay: 1000,
			EvalTimeout:                         2 * time.Second,
		},
	}

	svc := NewService(ServiceParam{
		Cfg:         cfg,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        alerts,
		ReadingRepo: reads,
		DeviceRepo:  devices,
		Clock:       fake,
	})

	return &testEnv{
		db:      db,
		node:    node,
		clock:   fake,
		svc:     svc,
		alerts:  alerts,
		devices: devices,
		reads:   reads,
	}
}

func (e *testEnv) seedDevice(t *testing.T, deviceID string, ownerID snowflake.ID) {
	t.Helper()
	require.NoError(t, e.db.Create(&devicedomain.Device{
		DeviceID:         deviceID,
		Name:             "meter " + deviceID,
		Location:         "basement",
		OwnerID:          ownerID,
		APIKeyHash:       devicedomain.HashAPIKey("key-" + deviceID),
		PulseRate:        450,
		IsActive:         true,
		InstallationDate: e.clock.Now().Add(-30 * 24 * time.Hour),
	}).Error)
}

func (e *testEnv) seedReading(t *testing.T, deviceID string, at time.Time, flowRate, total float64) {
	t.Helper()
	require.NoError(t, e.reads.Insert(context.Background(), &readingdomain.Reading{
		ID:               e.node.Generate(),
		DeviceID:         deviceID,
		Timestamp:        at.UTC(),
		FlowRate:         flowRate,
		TotalConsumption: total,
		PulseCount:       int64(total * 450),
		DailyConsumption: total,
		CreatedAt:        at.UTC(),
	}))
}

func (e *testEnv) openAlerts(t *testing.T, deviceID string, alertType alertdomain.AlertType) []alertdomain.Alert {
	t.Helper()
	var out []alertdomain.Alert
	err := e.db.
		Where("device_id = ? AND alert_type = ? AND is_resolved = ?", deviceID, alertType, false).
		Find(&out).Error
	require.NoError(t, err)
	return out
}

func TestEvaluate_LeakFiresOnSustainedFlow(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-001", owner)

	now := env.clock.Now()
	for i := 0; i < 6; i++ {
		env.seedReading(t, "WM-001", now.Add(-time.Duration(i*8)*time.Minute), 1.5, 5)
	}

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-001"))

	open := env.openAlerts(t, "WM-001", alertdomain.TypeLeak)
	require.Len(t, open, 1)
	assert.Equal(t, alertdomain.SeverityHigh, open[0].Severity)
	assert.Equal(t, "Potential leak detected. Continuous flow of 1.50 L/min for over 1 hour.", open[0].Message)
	assert.InDelta(t, 1.5, open[0].ActualValue, 1e-9)
	assert.InDelta(t, 10.0/60, open[0].ThresholdValue, 1e-9)
}

func TestEvaluate_LeakInconclusiveWithFewSamples(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-002", owner)

	now := env.clock.Now()
	for i := 0; i < 5; i++ {
		env.seedReading(t, "WM-002", now.Add(-time.Duration(i*10)*time.Minute), 5, 5)
	}

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-002"))
	assert.Empty(t, env.openAlerts(t, "WM-002", alertdomain.TypeLeak))
}

func TestEvaluate_LeakIgnoresReadingsOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-003", owner)

	now := env.clock.Now()
	// Five samples in the trailing hour, one just past it. The heuristic
	// must not borrow the stale sample to reach its quorum.
	for i := 0; i < 5; i++ {
		env.seedReading(t, "WM-003", now.Add(-time.Duration(i*10)*time.Minute), 5, 5)
	}
	env.seedReading(t, "WM-003", now.Add(-61*time.Minute), 5, 5)

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-003"))
	assert.Empty(t, env.openAlerts(t, "WM-003", alertdomain.TypeLeak))
}

func TestEvaluate_LeakBelowThresholdDoesNotFire(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-004", owner)

	now := env.clock.Now()
	// 10 L/h threshold is 0.1667 L/min; keep every sample under it.
	for i := 0; i < 6; i++ {
		env.seedReading(t, "WM-004", now.Add(-time.Duration(i*8)*time.Minute), 0.1, 1)
	}

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-004"))
	assert.Empty(t, env.openAlerts(t, "WM-004", alertdomain.TypeLeak))
}

func TestEvaluate_ExcessiveDailyUsage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-005", owner)

	now := env.clock.Now()
	env.seedReading(t, "WM-005", now.Add(-3*time.Hour), 0, 700)
	env.seedReading(t, "WM-005", now.Add(-1*time.Hour), 0, 500)

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-005"))

	open := env.openAlerts(t, "WM-005", alertdomain.TypeExcessive)
	require.Len(t, open, 1)
	assert.Equal(t, alertdomain.SeverityMedium, open[0].Severity)
	assert.Equal(t, "Excessive water usage detected. Daily consumption: 1200.00 liters.", open[0].Message)
	assert.InDelta(t, 1200, open[0].ActualValue, 1e-9)
	assert.InDelta(t, 1000, open[0].ThresholdValue, 1e-9)
}

func TestEvaluate_ExcessiveIgnoresPriorDay(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-006", owner)

	now := env.clock.Now()
	env.seedReading(t, "WM-006", now.Add(-26*time.Hour), 0, 2000)
	env.seedReading(t, "WM-006", now.Add(-1*time.Hour), 0, 100)

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-006"))
	assert.Empty(t, env.openAlerts(t, "WM-006", alertdomain.TypeExcessive))
}

func TestEvaluate_DedupesOpenAlert(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-007", owner)

	now := env.clock.Now()
	for i := 0; i < 6; i++ {
		env.seedReading(t, "WM-007", now.Add(-time.Duration(i*5)*time.Minute), 2, 5)
	}

	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-007"))
	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-007"))
	require.NoError(t, env.svc.Evaluate(context.Background(), "WM-007"))

	assert.Len(t, env.openAlerts(t, "WM-007", alertdomain.TypeLeak), 1)
}

func TestOpen_ReturnsFalseWhenAlreadyOpen(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-008", owner)

	req := alertdomain.OpenRequest{
		DeviceID:  "WM-008",
		AlertType: alertdomain.TypeMaintenance,
		Severity:  alertdomain.SeverityLow,
		Message:   "Filter service due.",
	}

	created, err := env.svc.Open(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.svc.Open(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestResolve_ThenReopen(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-009", owner)

	created, err := env.svc.Open(context.Background(), alertdomain.OpenRequest{
		DeviceID:  "WM-009",
		AlertType: alertdomain.TypeLeak,
		Severity:  alertdomain.SeverityHigh,
		Message:   "Potential leak detected. Continuous flow of 3.00 L/min for over 1 hour.",
	})
	require.NoError(t, err)
	require.True(t, created)

	open := env.openAlerts(t, "WM-009", alertdomain.TypeLeak)
	require.Len(t, open, 1)

	resolved, err := env.svc.Resolve(context.Background(), alertdomain.ResolveRequest{
		AlertID:    open[0].ID,
		ResolvedBy: owner,
		OwnerID:    owner,
	})
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, owner, *resolved.ResolvedBy)

	// The open slot is free again; the condition can re-fire.
	created, err = env.svc.Open(context.Background(), alertdomain.OpenRequest{
		DeviceID:  "WM-009",
		AlertType: alertdomain.TypeLeak,
		Severity:  alertdomain.SeverityHigh,
		Message:   "Potential leak detected. Continuous flow of 3.00 L/min for over 1 hour.",
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestResolve_AlreadyResolved(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-010", owner)

	_, err := env.svc.Open(context.Background(), alertdomain.OpenRequest{
		DeviceID:  "WM-010",
		AlertType: alertdomain.TypeExcessive,
		Severity:  alertdomain.SeverityMedium,
		Message:   "Excessive water usage detected. Daily consumption: 1500.00 liters.",
	})
	require.NoError(t, err)

	open := env.openAlerts(t, "WM-010", alertdomain.TypeExcessive)
	require.Len(t, open, 1)

	req := alertdomain.ResolveRequest{AlertID: open[0].ID, ResolvedBy: owner, OwnerID: owner}
	_, err = env.svc.Resolve(context.Background(), req)
	require.NoError(t, err)

	_, err = env.svc.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, alertdomain.ErrAlreadyResolved)
}

func TestResolve_ScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	stranger := env.node.Generate()
	env.seedDevice(t, "WM-011", owner)

	_, err := env.svc.Open(context.Background(), alertdomain.OpenRequest{
		DeviceID:  "WM-011",
		AlertType: alertdomain.TypeLeak,
		Severity:  alertdomain.SeverityHigh,
		Message:   "Potential leak detected. Continuous flow of 2.00 L/min for over 1 hour.",
	})
	require.NoError(t, err)

	open := env.openAlerts(t, "WM-011", alertdomain.TypeLeak)
	require.Len(t, open, 1)

	// Another owner's alert looks like a missing one; no information leaks.
	_, err = env.svc.Resolve(context.Background(), alertdomain.ResolveRequest{
		AlertID:    open[0].ID,
		ResolvedBy: stranger,
		OwnerID:    stranger,
	})
	assert.ErrorIs(t, err, alertdomain.ErrAlertNotFound)

	// An operator may resolve regardless of ownership.
	resolved, err := env.svc.Resolve(context.Background(), alertdomain.ResolveRequest{
		AlertID:    open[0].ID,
		ResolvedBy: stranger,
		Operator:   true,
		OwnerID:    stranger,
	})
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
}

func TestResolve_UnknownAlert(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Resolve(context.Background(), alertdomain.ResolveRequest{
		AlertID:    env.node.Generate(),
		ResolvedBy: env.node.Generate(),
		Operator:   true,
	})
	assert.ErrorIs(t, err, alertdomain.ErrAlertNotFound)

	_, err = env.svc.Resolve(context.Background(), alertdomain.ResolveRequest{})
	assert.ErrorIs(t, err, alertdomain.ErrInvalidAlertID)
}

func TestList_FiltersByResolution(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	env.seedDevice(t, "WM-012", owner)

	_, err := env.svc.Open(context.Background(), alertdomain.OpenRequest{
		DeviceID:  "WM-012",
		AlertType: alertdomain.TypeLeak,
		Severity:  alertdomain.SeverityHigh,
		Message:   "Potential leak detected. Continuous flow of 4.00 L/min for over 1 hour.",
	})
	require.NoError(t, err)
	_, err = env.svc.Open(context.Background(), alertdomain.OpenRequest{
		DeviceID:  "WM-012",
		AlertType: alertdomain.TypeExcessive,
		Severity:  alertdomain.SeverityMedium,
		Message:   "Excessive water usage detected. Daily consumption: 1100.00 liters.",
	})
	require.NoError(t, err)

	open := env.openAlerts(t, "WM-012", alertdomain.TypeLeak)
	require.Len(t, open, 1)
	_, err = env.svc.Resolve(context.Background(), alertdomain.ResolveRequest{
		AlertID:    open[0].ID,
		ResolvedBy: owner,
		OwnerID:    owner,
	})
	require.NoError(t, err)

	unresolved := false
	listed, err := env.svc.List(context.Background(), alertdomain.ListRequest{
		OwnerID:  owner,
		Resolved: &unresolved,
	})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, alertdomain.TypeExcessive, listed[0].AlertType)

	resolved := true
	listed, err = env.svc.List(context.Background(), alertdomain.ListRequest{
		OwnerID:  owner,
		Resolved: &resolved,
	})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, alertdomain.TypeLeak, listed[0].AlertType)

	listed, err = env.svc.List(context.Background(), alertdomain.ListRequest{OwnerID: owner})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
