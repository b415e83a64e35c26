// Package app provides the main application logic and lifecycle management.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"shiftclock/internal/config"
	"shiftclock/internal/models"
	"shiftclock/internal/services"
	"shiftclock/internal/store"
	"shiftclock/internal/types"
	"shiftclock/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"gorm.io/gorm"
)

// App holds all services and manages the application lifecycle.
type App struct {
	engine          *gin.Engine
	configManager   types.ConfigManager
	settingsManager *config.SystemSettingsManager
	dispatcher      *services.EventDispatcher
	reconciliation  *services.ReconciliationService
	storage         store.Store
	db              *gorm.DB
	httpServer      *http.Server
}

// AppParams defines the dependencies for the App.
type AppParams struct {
	dig.In
	Engine          *gin.Engine
	ConfigManager   types.ConfigManager
	SettingsManager *config.SystemSettingsManager
	Dispatcher      *services.EventDispatcher
	Reconciliation  *services.ReconciliationService
	Storage         store.Store
	DB              *gorm.DB
}

// NewApp is the constructor for App, with dependencies injected by dig.
func NewApp(params AppParams) *App {
	return &App{
		engine:          params.Engine,
		configManager:   params.ConfigManager,
		settingsManager: params.SettingsManager,
		dispatcher:      params.Dispatcher,
		reconciliation:  params.Reconciliation,
		storage:         params.Storage,
		db:              params.DB,
	}
}

// Start runs the application, it is a non-blocking call.
func (a *App) Start() error {
	if a.configManager.IsMaster() {
		logrus.Info("Starting as Master Node.")

		if err := a.db.AutoMigrate(
			&models.SystemSetting{},
			&models.Organization{},
			&models.Shift{},
			&models.WorkLocation{},
			&models.User{},
			&models.AttendanceSession{},
			&models.DailyAttendance{},
			&models.Holiday{},
			&models.LeaveRequest{},
		); err != nil {
			return fmt.Errorf("database auto-migration failed: %w", err)
		}
		logrus.Info("Database auto-migration completed.")

		if err := a.settingsManager.EnsureSettingsInitialized(a.db); err != nil {
			return fmt.Errorf("failed to initialize system settings: %w", err)
		}
		logrus.Info("System settings initialized in DB.")
	} else {
		logrus.Info("Starting as Slave Node.")
	}

	a.settingsManager.Initialize(a.db, a.storage, a.configManager.IsMaster())
	a.dispatcher.Start()

	// The sweep runs only on the master so a day is finalized exactly once.
	if a.configManager.IsMaster() {
		a.reconciliation.Start()
	}

	a.configManager.DisplayServerConfig()

	serverConfig := a.configManager.GetEffectiveServerConfig()
	a.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		Handler:        a.engine,
		ReadTimeout:    time.Duration(serverConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(serverConfig.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(serverConfig.IdleTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.Infof("Attendance server started successfully on version: %s", version.Version)
		logrus.Infof("Server address: http://%s:%d", serverConfig.Host, serverConfig.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server startup failed: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the application.
func (a *App) Stop(ctx context.Context) {
	logrus.Info("Shutting down server...")

	serverConfig := a.configManager.GetEffectiveServerConfig()
	totalTimeout := time.Duration(serverConfig.GracefulShutdownTimeout) * time.Second

	// Reserve a slice of the budget for background services
	httpShutdownTimeout := totalTimeout - 5*time.Second
	if httpShutdownTimeout <= 0 {
		httpShutdownTimeout = totalTimeout
	}
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancelHTTP()

	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		logrus.Debug("HTTP server graceful shutdown timed out, forcing remaining connections to close.")
		if closeErr := a.httpServer.Close(); closeErr != nil {
			logrus.Errorf("Error forcing HTTP server to close: %v", closeErr)
		}
	}
	logrus.Info("HTTP server has been shut down.")

	stoppableServices := []func(context.Context){
		a.settingsManager.Stop,
		a.dispatcher.Stop,
	}
	if serverConfig.IsMaster {
		stoppableServices = append(stoppableServices, a.reconciliation.Stop)
	}

	var wg sync.WaitGroup
	wg.Add(len(stoppableServices))
	for _, stopFunc := range stoppableServices {
		go func(stop func(context.Context)) {
			defer wg.Done()
			stop(ctx)
		}(stopFunc)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("All background services stopped.")
	case <-ctx.Done():
		logrus.Warn("Shutdown timed out, some services may not have stopped gracefully.")
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing storage")
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logrus.WithError(err).Warn("Error closing database")
			}
		}
	}

	logrus.Info("Server exited gracefully")
}
