package device

import (
	"github.com/tidewatch/aquameter/internal/device/repository"
	"github.com/tidewatch/aquameter/internal/device/service"
	"go.uber.org/fx"
)

var Module = fx.Module("device.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
