package ownership

import (
	"github.com/smallbiznis/travelmate/internal/ownership/repository"
	"github.com/smallbiznis/travelmate/internal/ownership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ownership.resolver",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
