//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/server"
)

// InitializeServer wires a fire-control server from the config file at path.
func InitializeServer(path string) (*server.Server, error) {
	wire.Build(
		config.Load,
		wire.FieldsOf(new(config.Config), "Log", "Server"),
		ProvideLogger,
		wire.Bind(new(log.Log), new(*log.Logger)),
		bus.New,
		server.NewService,
		server.New,
	)
	return nil, nil
}
