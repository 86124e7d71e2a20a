package receipt

import (
	"github.com/smallbiznis/travelmate/internal/receipt/ocr"
	"github.com/smallbiznis/travelmate/internal/receipt/repository"
	"github.com/smallbiznis/travelmate/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(ocr.NewUnconfiguredProvider),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
