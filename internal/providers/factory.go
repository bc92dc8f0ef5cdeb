package providers

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/domain/host"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/providers/crypto"
	"github.com/GriffinCanCode/localwebapp/internal/providers/files"
	"github.com/GriffinCanCode/localwebapp/internal/providers/hostapp"
	"github.com/GriffinCanCode/localwebapp/internal/providers/text"
	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// Builtin returns a fresh set of the native capability handlers
func Builtin(started time.Time, logger *zap.Logger) []service.Handler {
	return []service.Handler{
		files.New(),
		crypto.New(),
		text.New(),
		hostapp.New(started, logger),
	}
}

// Factory returns a host.HandlerFactory giving each loaded app its own handlers
func Factory(logger *zap.Logger) host.HandlerFactory {
	started := time.Now()
	logger = logging.OrNop(logger)
	return func(handle *types.HostHandle) []service.Handler {
		return Builtin(started, logger.With(logging.AppID(handle.Manifest.ID)))
	}
}
