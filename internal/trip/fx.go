package trip

import (
	"github.com/smallbiznis/travelmate/internal/trip/repository"
	"github.com/smallbiznis/travelmate/internal/trip/service"
	"go.uber.org/fx"
)

var Module = fx.Module("trip.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
