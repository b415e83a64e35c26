// Package container builds the dependency injection graph.
package container

import (
	"shiftclock/internal/app"
	"shiftclock/internal/calendar"
	"shiftclock/internal/config"
	"shiftclock/internal/db"
	"shiftclock/internal/geocoding"
	"shiftclock/internal/handler"
	"shiftclock/internal/media"
	"shiftclock/internal/policy"
	"shiftclock/internal/router"
	"shiftclock/internal/services"
	"shiftclock/internal/store"

	"go.uber.org/dig"
)

// BuildContainer wires every constructor into a dig container.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	constructors := []any{
		// Infrastructure
		config.NewSystemSettingsManager,
		config.NewManager,
		db.NewDB,
		store.NewStore,

		// Domain
		policy.NewResolver,
		calendar.NewService,
		geocoding.NewGeocoder,
		media.NewStore,
		services.NewEventDispatcher,
		services.NewAttendanceEngine,
		services.NewReconciliationService,

		// HTTP surface
		handler.NewAttendanceHandler,
		handler.NewCommonHandler,
		router.NewRouter,

		// Application
		app.NewApp,
	}

	for _, c := range constructors {
		if err := container.Provide(c); err != nil {
			return nil, err
		}
	}

	return container, nil
}
