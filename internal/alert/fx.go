package alert

import (
	"github.com/tidewatch/aquameter/internal/alert/repository"
	"github.com/tidewatch/aquameter/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
