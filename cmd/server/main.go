package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patientflow/backend/internal/config"
	"github.com/patientflow/backend/internal/db"
	"github.com/patientflow/backend/internal/doctors"
	"github.com/patientflow/backend/internal/estimator"
	"github.com/patientflow/backend/internal/events"
	"github.com/patientflow/backend/internal/history"
	httpapi "github.com/patientflow/backend/internal/http"
	"github.com/patientflow/backend/internal/http/ws"
	"github.com/patientflow/backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "patientflow-backend").Logger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	roster, err := config.LoadDoctors(cfg.DoctorsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DoctorsFile).Msg("failed to load doctor roster")
	}
	profiles := doctors.NewStore(cfg.DefaultConsultMinutes)
	for _, d := range roster {
		if err := profiles.Add(d); err != nil {
			logger.Fatal().Err(err).Msg("invalid doctor roster")
		}
	}
	logger.Info().Int("doctors", profiles.Len()).Msg("doctor roster loaded")

	var (
		store   *db.Store
		sources []estimator.HistorySource
	)
	if cfg.DatabaseURL != "" {
		store, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		sources = append(sources, store)
	}
	if cfg.HistoryCSV != "" {
		sources = append(sources, history.NewFileSource(cfg.HistoryCSV, logger))
	}

	setupCtx, cancelSetup := context.WithTimeout(ctx, time.Minute)
	learned := estimator.LoadOrTrain(setupCtx, estimator.SetupOptions{ModelPath: cfg.ModelPath, Sources: sources}, logger)
	cancelSetup()
	est := estimator.New(learned, cfg.DefaultConsultMinutes, logger)

	bus := events.NewBus()
	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	bus.Subscribe(hub.Handle)
	bus.Subscribe(func(ev events.Event) {
		logger.Debug().
			Str("type", string(ev.Kind)).
			Str("patient_id", ev.PatientID).
			Int("doctor_id", ev.DoctorID).
			Msg("queue event")
	})

	mgr := queue.New(profiles, est, logger, queue.Options{
		EarlyArrivalThreshold: cfg.EarlyArrivalThreshold,
		Publisher:             bus,
	})

	router := httpapi.Router(cfg, mgr, est, store, hub, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Bool("learned_model", est.Learned()).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	stop()
	logger.Info().Msg("server stopped")
}
