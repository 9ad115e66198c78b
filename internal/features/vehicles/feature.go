package vehicles

import (
	"context"
	"time"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/handlers"
	"yad2watch/internal/features/vehicles/models"
	"yad2watch/internal/features/vehicles/services"
	"yad2watch/internal/server/services/mailer"
)

// Feature bundles the Yad2 vehicle monitor: loop, stores, notifier and
// the JSON API consumed by the configuration UI.
type Feature struct {
	*core.BaseFeature
	config  *core.Config
	monitor *services.Monitor
	store   *services.Store
	api     *handlers.APIHandler
}

// NewFeature wires the monitor from configuration.
func NewFeature(logger *core.Logger, config *core.Config) *Feature {
	featureLogger := logger.ForFeature("vehicles")

	store := services.NewStore(featureLogger, config.FoundListingsPath(), services.StoreConfig{
		TTL: config.Monitor.SeenTTL,
		Cap: config.Monitor.SeenCap,
	})
	store.Load()

	defaults := models.SearchConfig{
		Params:               models.DefaultSearchParams(),
		CheckIntervalSeconds: int(config.Monitor.CheckInterval / time.Second),
	}
	configs := services.NewConfigStore(featureLogger, config.ProfilesPath(), defaults)

	fetcher := services.NewFetcher(featureLogger, services.FetcherConfig{
		Timeout:   config.Monitor.FetchTimeout,
		Retries:   config.Monitor.FetchRetries,
		RetryWait: config.Monitor.FetchRetryWait,
	})

	var transports []services.Transport
	if config.Telegram.Enabled {
		transports = append(transports, services.NewTelegramTransport(config.Telegram.BotToken, config.Telegram.ChatID))
	}
	if config.Email.Enabled {
		m := mailer.New(config.Email.SMTP2GOAPIKey, config.Email.Sender)
		transports = append(transports, services.NewEmailTransport(m, config.Email.Recipient))
	}
	notifier := services.NewNotifier(featureLogger, transports...)

	backoff := services.NewBackoffController(config.Monitor.CheckInterval, config.Monitor.BackoffMax)

	monitor := services.NewMonitor(
		featureLogger,
		fetcher,
		store,
		configs,
		notifier,
		backoff,
		services.SystemClock(),
		services.MonitorConfig{
			MaxPages:  config.Monitor.MaxPages,
			PageDelay: config.Monitor.PageDelay,
		},
	)

	api := handlers.NewAPIHandler(featureLogger, monitor, store, configs, config.LogPath(), config.AutoStart)

	return &Feature{
		BaseFeature: core.NewBaseFeature(
			"vehicles",
			"Yad2 vehicle listing monitor with private-seller alerts",
			true,
			logger,
		),
		config:  config,
		monitor: monitor,
		store:   store,
		api:     api,
	}
}

// Init starts the monitor when auto-start is configured.
func (f *Feature) Init(ctx context.Context) error {
	if err := f.BaseFeature.Init(ctx); err != nil {
		return err
	}

	if f.config.AutoStart {
		if err := f.monitor.Start(); err != nil {
			return err
		}
		f.Logger().Info("Monitor auto-started")
	}
	return nil
}

// Routes returns the HTTP routes for the vehicles feature.
func (f *Feature) Routes() []core.Route {
	return []core.Route{
		{Method: "GET", Path: "/vehicles/api/params", Handler: f.api.GetParams},
		{Method: "POST", Path: "/vehicles/api/params", Handler: f.api.SetParams},

		{Method: "POST", Path: "/vehicles/api/monitor/start", Handler: f.api.StartMonitor},
		{Method: "POST", Path: "/vehicles/api/monitor/stop", Handler: f.api.StopMonitor},
		{Method: "GET", Path: "/vehicles/api/monitor/status", Handler: f.api.MonitorStatus},

		{Method: "GET", Path: "/vehicles/api/listings", Handler: f.api.ListListings},
		{Method: "GET", Path: "/vehicles/api/listings/export", Handler: f.api.ExportListings},
		{Method: "DELETE", Path: "/vehicles/api/listings/{token}", Handler: f.api.DismissListing},
		{Method: "DELETE", Path: "/vehicles/api/listings", Handler: f.api.ClearListings},

		{Method: "DELETE", Path: "/vehicles/api/seen", Handler: f.api.ClearSeen},

		{Method: "GET", Path: "/vehicles/api/logs", Handler: f.api.GetLogs},
		{Method: "DELETE", Path: "/vehicles/api/logs", Handler: f.api.ClearLogs},

		{Method: "GET", Path: "/vehicles/api/profiles", Handler: f.api.ListProfiles},
		{Method: "POST", Path: "/vehicles/api/profiles", Handler: f.api.SaveProfile},
		{Method: "POST", Path: "/vehicles/api/profiles/{name}/load", Handler: f.api.LoadProfile},
		{Method: "DELETE", Path: "/vehicles/api/profiles/{name}", Handler: f.api.DeleteProfile},
	}
}

// Shutdown stops the monitor and persists the store.
func (f *Feature) Shutdown(ctx context.Context) error {
	f.monitor.Stop()
	if err := f.store.Save(time.Now()); err != nil {
		f.Logger().Error("Failed to persist store on shutdown", "error", err)
	}
	return f.BaseFeature.Shutdown(ctx)
}
