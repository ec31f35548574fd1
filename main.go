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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lightmeter/internal/config"
	lm "github.com/ztkent/lightmeter/internal/lightmeter"
	"github.com/ztkent/lightmeter/internal/sinks"
	"github.com/ztkent/lightmeter/internal/tools"
	"github.com/ztkent/lightmeter/veml6040"
)

/*
	This is the primary entry point for the Light Meter application.
	It should be running at startup, on a Raspberry Pi, with the VEML6040 sensor connected.
*/

const shutdownTimeout = 10 * time.Second

func main() {
	pid := os.Getpid()

	configPath := os.Getenv("LIGHTMETER_CONFIG")
	if configPath == "" {
		configPath = "lightmeter.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	l, logCloser, err := tools.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()
	veml6040.SetLogger(l)
	l.Infof("LightMeter [%d]", pid)

	// connect to the light sensor, the dashboard is still served without one
	sensor, err := connectSensor(cfg.Sensor)
	if err != nil {
		l.WithError(err).Error("Failed to connect to the VEML6040 sensor")
	}

	// connect to the sqlite database
	db, err := tools.ConnectSqlite(cfg.Database.Path, l)
	if err != nil {
		// Unlike connecting to the sensor, this should always work.
		l.Fatalf("Failed to connect to the sqlite database: %v", err)
	}
	defer db.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		l.Fatalf("Failed to load timezone: %v", err)
	}

	meter := lm.New(sensor, db, l)
	meter.Location = loc
	meter.RecordInterval = cfg.Sensor.RecordInterval
	meter.MaxJobDuration = cfg.Sensor.MaxJobDuration
	meter.DBPath = cfg.Database.Path
	meter.Publishers = connectPublishers(cfg, l)

	// Initialize router
	r := chi.NewRouter()
	// Log requests and recover from panics
	r.Use(middleware.Logger)
	r.Use(handleServerPanic)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Listen for any result messages from our jobs, record them in sqlite
	go meter.MonitorAndRecordResults(ctx)
	defineRoutes(r, meter, cfg.Server.LocalOnly)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.SSL {
			// Generate a self-signed certificate if one doesn't exist
			generated, err := tools.EnsureCertificate(cfg.Server.CertFile, cfg.Server.KeyFile)
			if err != nil {
				serveErr <- fmt.Errorf("failed to ensure certificate: %w", err)
				return
			}
			if generated {
				l.Info("Generated a self-signed certificate")
			}
			l.Infof("Starting HTTPS server on port %d", cfg.Server.Port)
			serveErr <- srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		l.Infof("Starting HTTP server on port %d", cfg.Server.Port)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			l.WithError(err).Error("Server stopped")
		}
	case <-ctx.Done():
		l.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Error("Failed to shut down the server")
	}
	if err := meter.Shutdown(); err != nil {
		l.WithError(err).Error("Failed to shut down the light meter")
	}
}

func connectSensor(cfg config.SensorConfig) (*veml6040.AutoVEML6040, error) {
	var bus veml6040.Bus
	var err error
	switch cfg.Transport {
	case config.TransportPeriph:
		bus, err = veml6040.OpenPeriph(cfg.PeriphBus)
	case config.TransportSimulated:
		bus = veml6040.NewSimulatedBus(cfg.SimulatedLux)
	default:
		bus, err = veml6040.OpenDevfs(cfg.Device)
	}
	if err != nil {
		return nil, err
	}

	sensor, err := veml6040.NewAutoVEML6040(veml6040.NewVEML6040(bus))
	if err != nil {
		bus.Close()
		return nil, err
	}
	if cfg.Transport == config.TransportSimulated {
		sensor.SetSleep(func(time.Duration) {})
	}
	return sensor, nil
}

// Readings are still recorded in sqlite when a publisher can't connect
func connectPublishers(cfg *config.Config, l *logrus.Logger) []lm.Publisher {
	var publishers []lm.Publisher
	if cfg.MQTT.Enabled {
		p, err := sinks.NewMQTTPublisher(cfg.MQTT, l)
		if err != nil {
			l.WithError(err).Error("Failed to connect to the MQTT broker")
		} else {
			publishers = append(publishers, p)
		}
	}
	if cfg.InfluxDB.Enabled {
		p, err := sinks.NewInfluxPublisher(cfg.InfluxDB, l)
		if err != nil {
			l.WithError(err).Error("Failed to connect to InfluxDB")
		} else {
			publishers = append(publishers, p)
		}
	}
	return publishers
}

func defineRoutes(r *chi.Mux, meter *lm.LMeter, localOnly bool) {
	// Light Meter Dashboard Controls
	r.Group(func(r chi.Router) {
		if localOnly {
			r.Use(tools.CheckInNetwork)
		}
		r.Get("/", meter.ServeDashboard())
		r.Route("/lightmeter", func(r chi.Router) {
			r.Get("/start", meter.Start())
			r.Get("/stop", meter.Stop())
			r.Get("/measure", meter.Measure())
			r.Get("/current-conditions", meter.CurrentConditions())
			r.Get("/export", meter.ServeResultsDB())
			r.Post("/graph", meter.ServeResultsGraph())
			r.Get("/controls", meter.ServeControls())
			r.Get("/status", meter.ServeSensorStatus())
			r.Post("/results", meter.ServeResultsTab())
			r.Get("/clear", meter.Clear())
		})
	})

	// Light Meter API, these serve a JSON response
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/measure", meter.Measure())
		r.Get("/status", meter.ServeSensorStatus())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/export", meter.ServeResultsDB())
	})

	// Route for service identification
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			ServiceName string `json:"service_name"`
		}{
			ServiceName: "Light Meter",
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})
}

func handleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				lm.ServeResponse(w, r, fmt.Sprintf("%v", err), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
