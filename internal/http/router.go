package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/patientflow/backend/internal/config"
	"github.com/patientflow/backend/internal/db"
	"github.com/patientflow/backend/internal/estimator"
	"github.com/patientflow/backend/internal/http/handlers"
	"github.com/patientflow/backend/internal/http/middleware"
	"github.com/patientflow/backend/internal/http/ws"
	"github.com/patientflow/backend/internal/queue"
	"github.com/patientflow/backend/internal/recommend"

	_ "github.com/patientflow/backend/docs"
)

// Router wires the staff and dashboard API. store may be nil.
func Router(cfg config.Config, mgr *queue.Manager, est *estimator.Estimator, store *db.Store, hub *ws.Hub, logger zerolog.Logger) *gin.Engine {
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Queue:     mgr,
		Estimator: est,
		Store:     store,
		Validator: validator.New(),
		Logger:    logger,
		Recommend: recommend.Options{
			PeakThresholdMinutes: cfg.PeakThresholdMinutes,
			PeakVolumeRatio:      cfg.PeakVolumeRatio,
		},
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/doctors", h.DoctorsList)
		api.POST("/doctors/:id/start", h.StartConsultation)
		api.POST("/doctors/:id/complete", h.CompleteConsultation)
		api.POST("/doctors/:id/refresh", h.RefreshEstimates)
		api.GET("/patients", h.PatientsList)
		api.POST("/patients", h.RegisterPatient)
		api.GET("/patients/:id", h.PatientDetails)
		api.GET("/snapshot", h.Snapshot)
		api.GET("/recommendations", h.Recommendations)
		api.GET("/estimate", h.Estimate)
		api.GET("/predictions", h.Predictions)
		api.GET("/debug/assignment", h.DebugAssignment)
	}

	if hub != nil {
		r.GET("/ws/events", hub.ServeWS)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
