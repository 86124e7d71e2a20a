package snapshot

import (
	"github.com/smallbiznis/travelmate/internal/snapshot/repository"
	"github.com/smallbiznis/travelmate/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
