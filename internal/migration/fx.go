package migration

import (
	"github.com/tidewatch/aquameter/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(apply),
)

func apply(cfg config.Config, log *zap.Logger, gdb *gorm.DB) error {
	// Embedded migrations target postgres; test and local sqlite schemas
	// are created by the callers that open them.
	if cfg.DBType != "postgres" {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("database migrations applied")
	return nil
}
