package main

import (
	"context"

	"fleetwatch/internal/analytics"
	"fleetwatch/internal/handlers"
	"fleetwatch/internal/ingest"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/store"
	"fleetwatch/internal/websocket"
	"fleetwatch/pkg/config"
	"fleetwatch/pkg/database"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/monitoring"
	"fleetwatch/pkg/mqtt"
	"fleetwatch/pkg/server"
	"fleetwatch/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("fleetwatch")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithField("version", version.Version).Info("Starting FleetWatch API")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("fleetwatch", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("fleetwatch", version.Version, version.GitCommit)
	serviceMetrics := metrics.New(metricsCollector)

	// Connect to Postgres
	dbURL := config.RequireEnv("DATABASE_URL")
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_AUTO_MIGRATE", true) {
		if err := database.ApplySchema(db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	eventStore := store.New(db, logger)

	// Start the WebSocket hub
	hub := websocket.NewHub(logger, serviceMetrics)
	go hub.Run()

	// Connect to the MQTT broker
	brokerURL := config.RequireEnv("MQTT_BROKER_URL")
	clientID := config.GetEnv("MQTT_CLIENT_ID", "fleetwatch-api")
	brokerConfig := mqtt.DefaultConfig(brokerURL, clientID)
	broker := mqtt.NewClient(brokerConfig, logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), brokerConfig.ConnectTimeout)
	defer connectCancel()
	if err := broker.Connect(connectCtx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer broker.Disconnect()

	// Subscribe the ingestion adapter to the device topics
	adapter := ingest.New(eventStore, hub, broker, logger, serviceMetrics)
	if err := adapter.Start(broker); err != nil {
		logger.WithError(err).Fatal("Failed to subscribe to device topics")
	}

	// Aggregation service
	analyticsService := analytics.New(eventStore, logger, serviceMetrics)

	// Health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("mqtt", monitoring.BrokerHealthCheck(broker))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":    dbURL,
		"MQTT_BROKER_URL": brokerURL,
	}))

	// Routes
	jwtSecret := []byte(config.RequireEnv("JWT_SECRET"))
	router := server.SetupServiceRouter(logger, "fleetwatch", healthChecker, metricsCollector)
	handlers.New(eventStore, analyticsService, hub, logger, jwtSecret).RegisterRoutes(router)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("fleetwatch", "8080")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
