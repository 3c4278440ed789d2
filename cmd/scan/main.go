package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"wifi-rtt-sync/internal/config"
	"wifi-rtt-sync/internal/database/influx"
	"wifi-rtt-sync/internal/database/postgres"
	"wifi-rtt-sync/internal/database/postgres/listeners"
	"wifi-rtt-sync/internal/database/postgres/repositories"
	"wifi-rtt-sync/internal/logger"
	"wifi-rtt-sync/internal/models"
	"wifi-rtt-sync/internal/mq"
	"wifi-rtt-sync/internal/mq/handlers"
	"wifi-rtt-sync/internal/observability"
	"wifi-rtt-sync/internal/services"
	"wifi-rtt-sync/internal/state"
	"wifi-rtt-sync/internal/ws"
)

type Application struct {
	config *config.Config

	postgresDB      *postgres.PostgresDB
	listenerManager *listeners.ListenerManager
	influxDB        *influx.InfluxDB

	accessPointRepository *repositories.AccessPointRepository

	display            *state.DisplayState
	collector          *observability.Collector
	registryService    *services.RegistryService
	scanService        *services.ScanService
	displaySyncService *services.DisplaySyncService

	mqttClient     *mq.Client
	topicManager   *mq.TopicManager
	agentClient    *mq.AgentClient
	triggerHandler *handlers.TriggerHandler

	hub        *ws.Hub
	httpServer *http.Server

	shutdownChan chan os.Signal
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func main() {
	app := &Application{}

	if err := app.initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := app.run(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

func (app *Application) initialize() error {
	var err error

	app.config, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	logger.NewLogger(app.config.Logger)
	log.Info().
		Str("component", "main").
		Str("version", app.config.Service.Version).
		Msg("Setting up service...")

	app.ctx, app.cancelFunc = context.WithCancel(context.Background())
	app.shutdownChan = make(chan os.Signal, 1)
	signal.Notify(app.shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	app.display = state.NewDisplayState()

	if err := app.initializeDatabases(); err != nil {
		return fmt.Errorf("error while initializing databases: %w", err)
	}

	if err := app.initializeMQTT(); err != nil {
		return fmt.Errorf("error while initializing MQTT: %w", err)
	}

	if err := app.initializeMetrics(); err != nil {
		return fmt.Errorf("error while initializing metrics: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return fmt.Errorf("error while initializing repositories: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return fmt.Errorf("error while initializing services: %w", err)
	}

	if err := app.setupTopicHandlers(); err != nil {
		return fmt.Errorf("error while setting up topic handlers: %w", err)
	}

	if err := app.setupTableListeners(); err != nil {
		return fmt.Errorf("error while setting up table listeners: %w", err)
	}

	if err := app.startHTTP(); err != nil {
		return fmt.Errorf("error while starting HTTP server: %w", err)
	}

	log.Info().Msg("Successfully initialized application")
	return nil
}

func (app *Application) initializeDatabases() error {
	var err error

	if app.config.Postgres.Enabled {
		app.postgresDB, err = postgres.NewConnection(app.config.Postgres)
		if err != nil {
			return fmt.Errorf("could not connect to PostgreSQL: %w", err)
		}
	}

	if app.config.InfluxDB.Enabled {
		app.influxDB, err = influx.NewConnection(&app.config.InfluxDB)
		if err != nil {
			return fmt.Errorf("could not connect to InfluxDB: %w", err)
		}
	}

	log.Info().
		Str("component", "main").
		Bool("postgres", app.config.Postgres.Enabled).
		Bool("influxdb", app.config.InfluxDB.Enabled).
		Msg("Successfully initialized databases")
	return nil
}

func (app *Application) initializeMQTT() error {
	var err error

	app.topicManager = mq.NewTopicManager(app.config.MQTT.BaseTopic, logger.GetLogger("topic-manager"))

	app.mqttClient, err = mq.NewClient(&app.config.MQTT, logger.GetLogger("mq-client"))
	if err != nil {
		return fmt.Errorf("could not create MQTT client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
	defer cancel()

	if err := app.mqttClient.Connect(connectCtx); err != nil {
		return fmt.Errorf("could not connect to MQTT broker: %w", err)
	}

	app.agentClient = mq.NewAgentClient(
		app.mqttClient,
		app.topicManager,
		app.config.Agent.ID,
		logger.GetLogger("agent-client"),
	)
	if err := app.agentClient.Start(); err != nil {
		return fmt.Errorf("could not start agent client: %w", err)
	}

	log.Info().
		Str("component", "main").
		Str("agent_id", app.config.Agent.ID).
		Msg("Successfully initialized MQTT client")

	return nil
}

func (app *Application) initializeMetrics() error {
	var err error

	app.collector, err = observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("could not register metrics: %w", err)
	}

	return nil
}

func (app *Application) initializeRepositories() error {
	if app.postgresDB == nil {
		return nil
	}

	app.accessPointRepository = repositories.NewAccessPointRepository(app.postgresDB.GetDB())

	log.Info().
		Str("component", "main").
		Msg("Successfully initialized repositories")
	return nil
}

func (app *Application) initializeServices() error {
	if app.accessPointRepository != nil {
		app.registryService = services.NewRegistryService(
			app.accessPointRepository,
			logger.GetLogger("registry-service"),
		)
	}

	var distanceWriter *influx.DistanceWriter
	if app.influxDB != nil {
		distanceWriter = influx.NewDistanceWriter(
			app.influxDB.GetWriteAPI(),
			logger.GetLogger("distance-writer"),
		)
	}

	app.scanService = services.NewScanService(
		app.agentClient,
		app.agentClient,
		app.agentClient,
		app.display,
		app.registryService,
		distanceWriter,
		app.collector,
		app.config.Agent.ScanTimeout,
		app.config.Agent.RangingTimeout,
		logger.GetLogger("scan-service"),
	)

	app.displaySyncService = services.NewDisplaySyncService(
		app.mqttClient,
		app.topicManager,
		app.display,
		logger.GetLogger("display-sync"),
	)
	app.displaySyncService.Start()

	log.Info().
		Str("component", "main").
		Msg("Successfully initialized services")
	return nil
}

func (app *Application) setupTopicHandlers() error {
	app.triggerHandler = handlers.NewTriggerHandler(
		app.topicManager,
		app.scanService,
		app.collector,
		logger.GetLogger("trigger-handler"),
	)

	triggerTopic := app.topicManager.GetDisplayTriggerTopic()
	if err := app.mqttClient.Subscribe(triggerTopic, app.triggerHandler.HandleMessage); err != nil {
		return fmt.Errorf("error subscribing to trigger topic: %w", err)
	}

	return nil
}

func (app *Application) setupTableListeners() error {
	if app.postgresDB == nil {
		return nil
	}

	app.listenerManager = listeners.NewListenerManager(
		app.postgresDB.GetDB(),
		app.config.Postgres.Dsn,
		app.collector,
		logger.GetLogger("listener-manager"),
	)

	accessPointListener := listeners.NewAccessPointTableListener(
		logger.GetLogger("accesspoint-listener"),
		app.mqttClient,
		app.topicManager,
	)
	if err := app.listenerManager.RegisterListener(accessPointListener); err != nil {
		return fmt.Errorf("failed to register access point listener: %w", err)
	}

	if err := app.listenerManager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize listener manager: %w", err)
	}

	app.listenerManager.Start()

	log.Info().Msg("All table listeners initialized and started")
	return nil
}

func (app *Application) startHTTP() error {
	app.hub = ws.NewHub(app.display, app.scanService, logger.GetLogger("ws-hub"))
	app.hub.Start()

	mux := http.NewServeMux()
	mux.Handle("/ws", app.hub)
	mux.Handle("/metrics", app.collector.Handler())

	if app.registryService != nil {
		mux.HandleFunc("GET /accesspoints", app.handleListAccessPoints)
		mux.HandleFunc("GET /accesspoints/{bssid}", app.handleGetAccessPoint)
	}

	app.httpServer = &http.Server{
		Addr:    app.config.HTTP.ListenAddr,
		Handler: mux,
	}

	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	log.Info().
		Str("component", "main").
		Str("listen_addr", app.config.HTTP.ListenAddr).
		Msg("HTTP server started")
	return nil
}

func (app *Application) handleListAccessPoints(w http.ResponseWriter, r *http.Request) {
	known, err := app.registryService.ListKnown(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error listing known access points")
		http.Error(w, "registry unavailable", http.StatusInternalServerError)
		return
	}

	dtos := make([]models.KnownAccessPointDto, 0, len(known))
	for _, ap := range known {
		dtos = append(dtos, ap.ToDto())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dtos)
}

func (app *Application) handleGetAccessPoint(w http.ResponseWriter, r *http.Request) {
	known, err := app.registryService.FindKnown(r.Context(), r.PathValue("bssid"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "unknown access point", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Error looking up access point")
		http.Error(w, "registry unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(known.ToDto())
}

func (app *Application) run() error {
	select {
	case sig := <-app.shutdownChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-app.ctx.Done():
		log.Info().Msg("context cancelled, shutting down application")
	}

	return app.shutdown()
}

func (app *Application) shutdown() error {
	if app.scanService != nil {
		app.scanService.Cancel()
	}

	if app.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
		cancel()
	}

	if app.hub != nil {
		app.hub.Stop()
	}

	if app.displaySyncService != nil {
		app.displaySyncService.Stop()
	}

	if app.listenerManager != nil {
		app.listenerManager.Stop()
	}

	if app.mqttClient != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		app.mqttClient.Disconnect(disconnectCtx)
		cancel()
	}

	if app.influxDB != nil {
		app.influxDB.Close()
	}

	if app.postgresDB != nil {
		if err := app.postgresDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		}
	}

	app.cancelFunc()
	return nil
}
