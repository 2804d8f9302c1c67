package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/tejusbharadwaj/nbeconnect/internal/api"
	"github.com/tejusbharadwaj/nbeconnect/internal/commands"
	"github.com/tejusbharadwaj/nbeconnect/internal/config"
	"github.com/tejusbharadwaj/nbeconnect/internal/database"
	"github.com/tejusbharadwaj/nbeconnect/internal/device"
	server "github.com/tejusbharadwaj/nbeconnect/internal/grpc"
	"github.com/tejusbharadwaj/nbeconnect/internal/logging"
	"github.com/tejusbharadwaj/nbeconnect/internal/metrics"
	"github.com/tejusbharadwaj/nbeconnect/internal/mqtt"
	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
	"github.com/tejusbharadwaj/nbeconnect/internal/scheduler"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Command nbeconnect polls an NBE pellet boiler and serves its state.
//
// The daemon:
//   - polls the boiler every interval and keeps the latest snapshot in memory
//   - serves values, sensors, consumption history and writes over gRPC and HTTP
//   - exports Prometheus metrics
//   - optionally mirrors sensors to MQTT and stores readings in TimescaleDB
//
// Usage:
//
//	nbeconnect [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	cfg := parseFlags()

	appConfig, err := config.Load(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Failed to validate configuration: %v", err)
	}

	logger, err := logging.New(appConfig.Logging.Level, appConfig.Logging.Format, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	loc, err := appConfig.Device.Location()
	if err != nil {
		logger.Fatalf("Failed to load timezone: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxy, err := device.Dial(ctx, device.Options{
		Password:         appConfig.Device.Password,
		Address:          appConfig.Device.IPAddress,
		Port:             appConfig.Device.Port,
		Serial:           appConfig.Device.Serial,
		AppID:            appConfig.Device.AppID,
		DiscoveryRetries: uint64(appConfig.Device.DiscoveryRetries),
		Timeout:          appConfig.Device.EndpointTimeout(),
	}, logging.Get(logger, "device"))
	if err != nil {
		logger.Fatalf("Failed to reach boiler: %v", err)
	}
	logger.WithField("address", proxy.Addr().String()).Info("Connected to boiler")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st := store.NewDatapointStore(logging.Get(logger, "store"))
	coordinator := poller.NewCoordinator(proxy, st, poller.Config{
		EndpointTimeout: appConfig.Device.EndpointTimeout(),
		CycleTimeout:    appConfig.Device.CycleTimeout(),
	}, logging.Get(logger, "poller"))
	service := poller.NewService(st, loc, logging.Get(logger, "service"))

	commander, err := commands.NewCommander(proxy, st, commands.DefaultPendingSize, logging.Get(logger, "commands"))
	if err != nil {
		logger.Fatalf("Failed to create commander: %v", err)
	}
	coordinator.AddListener(commander)

	health := server.NewHealthChecker()
	coordinator.SetRecorder(poller.Recorders{metrics.NewPollMetrics(registry), health})
	registry.MustRegister(metrics.NewSensorCollector(service))

	var history server.HistoryRepository
	repo, err := createRepository(appConfig.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to create repository: %v", err)
	}
	if repo != nil {
		history = repo
		coordinator.AddListener(database.NewSink(repo, service.SensorStates, logging.Get(logger, "database")))
	}

	if appConfig.MQTT.Enabled {
		mqttLogger := logging.Get(logger, "mqtt")
		client, err := mqtt.Connect(mqtt.Options{
			Broker:   appConfig.MQTT.Broker,
			ClientID: appConfig.MQTT.ClientID,
			Username: appConfig.MQTT.Username,
			Password: appConfig.MQTT.Password,
		}, mqttLogger)
		if err != nil {
			logger.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer client.Disconnect(250)

		publisher := mqtt.NewPublisher(client, appConfig.MQTT.TopicPrefix, service.SensorStates, commander, mqttLogger)
		if err := publisher.Subscribe(); err != nil {
			logger.Fatalf("Failed to subscribe to MQTT set topics: %v", err)
		}
		coordinator.AddListener(publisher)
	}

	// Initial refresh so the first requests see data
	sched := scheduler.NewScheduler(ctx, coordinator, appConfig.Device.PollInterval(), logging.Get(logger, "scheduler"))
	sched.RunNow()

	srv, err := server.SetupServer(
		server.NewBoilerService(service, commander, history),
		health,
		server.ServerConfig{
			RateLimit:      appConfig.Server.RateLimit,
			RateLimitBurst: appConfig.Server.RateLimitBurst,
		},
		metrics.NewRequestMetrics(registry),
		logging.Get(logger, "grpc"),
	)
	if err != nil {
		logger.Fatalf("Failed to setup server: %v", err)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", appConfig.Server.GRPCPort))
	if err != nil {
		logger.Fatalf("Failed to listen: %v", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", appConfig.Server.HTTPPort),
		Handler:           api.SetupRouter(api.NewHandler(service, commander, coordinator, logging.Get(logger, "api")), registry, logging.Get(logger, "http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 3)

	go func() {
		if err := sched.Start(); err != nil {
			errChan <- fmt.Errorf("scheduler error: %w", err)
		}
	}()

	go handleShutdown(ctx, cancel, srv, httpServer, sched, repo, logger)

	logger.WithFields(logrus.Fields{
		"grpc_port": appConfig.Server.GRPCPort,
		"http_port": appConfig.Server.HTTPPort,
	}).Info("Starting servers")

	go func() {
		if err := srv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		logger.Fatalf("Service error: %v", err)
	case <-ctx.Done():
		logger.Info("Shutdown complete")
	}
}

type Config struct {
	ConfigPath string
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "config.yaml", "Path to the config file, empty for environment only")

	flag.Parse()

	return cfg
}

// Handle graceful shutdown
func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	srv *grpc.Server,
	httpServer *http.Server,
	sched *scheduler.Scheduler,
	repo database.ReadingRepository,
	logger *logrus.Logger,
) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("Context canceled, initiating shutdown")
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received signal, initiating shutdown")
	}

	logger.Info("Stopping scheduler...")
	<-sched.Stop().Done()

	logger.Info("Gracefully stopping servers...")
	srv.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server did not stop cleanly")
	}
	logger.Info("Servers stopped")

	if repo != nil {
		repo.Close()
	}
	cancel()
}

// createRepository connects to TimescaleDB when enabled, nil otherwise
func createRepository(cfg config.DatabaseConfig, logger *logrus.Logger) (database.ReadingRepository, error) {
	if !cfg.Enabled {
		logger.Info("Database disabled, readings will not be stored")
		return nil, nil
	}
	repo, err := database.NewPostgresRepo(database.ConnString(
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	))
	if err != nil {
		return nil, err
	}
	return repo, nil
}
