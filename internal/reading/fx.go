package reading

import (
	"github.com/tidewatch/aquameter/internal/reading/repository"
	"github.com/tidewatch/aquameter/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
