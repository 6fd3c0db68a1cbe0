package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/patientflow/backend/internal/db"
	"github.com/patientflow/backend/internal/estimator"
	"github.com/patientflow/backend/internal/models"
	"github.com/patientflow/backend/internal/queue"
	"github.com/patientflow/backend/internal/recommend"
)

type Handler struct {
	Queue     *queue.Manager
	Estimator *estimator.Estimator
	// Store is nil when no database is configured.
	Store     *db.Store
	Validator *validator.Validate
	Logger    zerolog.Logger
	Recommend recommend.Options
	Clock     func() time.Time
}

type RegisterPatientRequest struct {
	Name              string     `json:"name" validate:"max=200"`
	AppointmentTime   *time.Time `json:"appointment_time"`
	ArrivalTime       *time.Time `json:"arrival_time"`
	PreferredDoctorID *int       `json:"preferred_doctor_id" validate:"omitempty,gt=0"`
}

type EstimateQuery struct {
	DoctorID    int  `form:"doctor_id" validate:"required,gt=0"`
	QueueLength *int `form:"queue_length" validate:"omitempty,gte=0"`
	Hour        *int `form:"hour" validate:"omitempty,gte=0,lte=23"`
	DayOfWeek   *int `form:"day_of_week" validate:"omitempty,gte=0,lte=6"`
}

type EstimateResponse struct {
	DoctorID            int     `json:"doctor_id"`
	QueueLength         int     `json:"queue_length"`
	Hour                int     `json:"hour"`
	DayOfWeek           int     `json:"day_of_week"`
	AvgConsultationTime float64 `json:"avg_consultation_time"`
	PredictedWait       float64 `json:"predicted_wait"`
	Strategy            string  `json:"strategy"`
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	model := estimator.StrategyFallback
	if h.Estimator != nil && h.Estimator.Learned() {
		model = estimator.StrategyLearned
	}
	database := "disabled"
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
			return
		}
		database = "ok"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": model, "database": database})
}

// @Summary List doctors
// @Description Roster with live queue length, busy flag and running average
// @Tags doctors
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/doctors [get]
func (h *Handler) DoctorsList(c *gin.Context) {
	snap := h.Queue.Snapshot()
	c.JSON(http.StatusOK, gin.H{"items": snap.Doctors})
}

// @Summary Register patient
// @Description Assigns the patient (to the preferred doctor, or the one with the shortest predicted wait) and enqueues them
// @Tags patients
// @Accept json
// @Produce json
// @Param payload body RegisterPatientRequest true "Registration"
// @Success 201 {object} models.Patient
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/patients [post]
func (h *Handler) RegisterPatient(c *gin.Context) {
	var req RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	in := queue.RegisterRequest{Name: req.Name, PreferredDoctorID: req.PreferredDoctorID}
	if req.AppointmentTime != nil {
		in.AppointmentTime = *req.AppointmentTime
	}
	if req.ArrivalTime != nil {
		in.ArrivalTime = *req.ArrivalTime
	}
	p, err := h.Queue.Register(in)
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary List patients
// @Tags patients
// @Produce json
// @Param status query string false "waiting | in_consultation | completed"
// @Success 200 {object} map[string]any
// @Router /api/patients [get]
func (h *Handler) PatientsList(c *gin.Context) {
	status := models.Status(c.Query("status"))
	switch status {
	case "", models.StatusWaiting, models.StatusInConsultation, models.StatusCompleted:
	default:
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown status", string(status))
		return
	}
	items := []models.Patient{}
	for _, p := range h.Queue.Patients() {
		if status == "" || p.Status == status {
			items = append(items, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Patient details
// @Tags patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 200 {object} models.Patient
// @Failure 404 {object} map[string]any
// @Router /api/patients/{id} [get]
func (h *Handler) PatientDetails(c *gin.Context) {
	p, err := h.Queue.Patient(c.Param("id"))
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Start consultation
// @Description Moves the head of the doctor's queue into consultation. patient is null when the queue is empty or the doctor is busy.
// @Tags doctors
// @Produce json
// @Param id path int true "Doctor ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/doctors/{id}/start [post]
func (h *Handler) StartConsultation(c *gin.Context) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return
	}
	p, err := h.Queue.StartConsultation(doctorID)
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient": p})
}

// @Summary Complete consultation
// @Tags doctors
// @Produce json
// @Param id path int true "Doctor ID"
// @Success 200 {object} models.Patient
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/doctors/{id}/complete [post]
func (h *Handler) CompleteConsultation(c *gin.Context) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return
	}
	p, err := h.Queue.CompleteConsultation(doctorID)
	if err != nil {
		h.writeQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Refresh predicted waits
// @Tags doctors
// @Produce json
// @Param id path int true "Doctor ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/doctors/{id}/refresh [post]
func (h *Handler) RefreshEstimates(c *gin.Context) {
	doctorID, ok := doctorParam(c)
	if !ok {
		return
	}
	if err := h.Queue.RefreshEstimates(doctorID); err != nil {
		h.writeQueueError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Queue snapshot
// @Tags dashboard
// @Produce json
// @Success 200 {object} models.Snapshot
// @Router /api/snapshot [get]
func (h *Handler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.Queue.Snapshot())
}

// @Summary Recommendations
// @Tags dashboard
// @Produce json
// @Param peak_threshold query number false "Overload threshold in minutes"
// @Param peak_ratio query number false "Waiting/total ratio for the peak advisory"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/recommendations [get]
func (h *Handler) Recommendations(c *gin.Context) {
	opts := h.Recommend
	var err error
	if v := c.Query("peak_threshold"); v != "" {
		if opts.PeakThresholdMinutes, err = strconv.ParseFloat(v, 64); err != nil || opts.PeakThresholdMinutes <= 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "peak_threshold must be a positive number", v)
			return
		}
	}
	if v := c.Query("peak_ratio"); v != "" {
		if opts.PeakVolumeRatio, err = strconv.ParseFloat(v, 64); err != nil || opts.PeakVolumeRatio <= 0 || opts.PeakVolumeRatio > 1 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "peak_ratio must be in (0, 1]", v)
			return
		}
	}
	snap := h.Queue.Snapshot()
	c.JSON(http.StatusOK, gin.H{"items": recommend.Recommend(snap, opts), "taken_at": snap.TakenAt})
}

// @Summary Estimate wait
// @Description Probes the wait-time estimator. Omitted parameters default to the doctor's live queue and the current time.
// @Tags estimator
// @Produce json
// @Param doctor_id query int true "Doctor ID"
// @Param queue_length query int false "Queue length"
// @Param hour query int false "Hour of day"
// @Param day_of_week query int false "Day of week, Monday = 0"
// @Success 200 {object} EstimateResponse
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/estimate [get]
func (h *Handler) Estimate(c *gin.Context) {
	var q EstimateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query", err.Error())
		return
	}
	if err := h.Validator.Struct(q); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	doc, ok := h.Queue.Snapshot().Doctor(q.DoctorID)
	if !ok {
		h.writeQueueError(c, &queue.InvalidDoctorError{DoctorID: q.DoctorID})
		return
	}

	f := estimator.FeaturesAt(doc.ID, doc.QueueLength, doc.AvgConsultationTime, h.now())
	if q.QueueLength != nil {
		f.QueueLength = *q.QueueLength
	}
	if q.Hour != nil {
		f.Hour = *q.Hour
	}
	if q.DayOfWeek != nil {
		f.DayOfWeek = *q.DayOfWeek
	}
	res := h.Estimator.Estimate(f)
	c.JSON(http.StatusOK, EstimateResponse{
		DoctorID:            f.DoctorID,
		QueueLength:         f.QueueLength,
		Hour:                f.Hour,
		DayOfWeek:           f.DayOfWeek,
		AvgConsultationTime: f.AvgConsultationTime,
		PredictedWait:       res.Minutes,
		Strategy:            res.Strategy,
	})
}

// @Summary Prediction audit trail
// @Tags estimator
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/predictions [get]
func (h *Handler) Predictions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Queue.Predictions()})
}

// @Summary Debug assignment
// @Description Ranks every doctor the way automatic assignment would
// @Tags debug
// @Produce json
// @Param appointment_time query string false "RFC3339 appointment time, defaults to now"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/debug/assignment [get]
func (h *Handler) DebugAssignment(c *gin.Context) {
	var at time.Time
	if v := c.Query("appointment_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "appointment_time must be RFC3339", err.Error())
			return
		}
		at = t
	}
	ranked := h.Queue.RankDoctors(at)
	var selected *queue.Candidate
	if len(ranked) > 0 {
		selected = &ranked[0]
	}
	c.JSON(http.StatusOK, gin.H{"selected": selected, "candidates": ranked})
}

func doctorParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Doctor id must be a positive integer", c.Param("id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeQueueError(c *gin.Context, err error) {
	var (
		invalid  *queue.InvalidDoctorError
		noActive *queue.NoActiveConsultationError
		unknown  *queue.UnknownPatientError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(c, http.StatusNotFound, "DOCTOR_NOT_FOUND", "Doctor not found", gin.H{"doctor_id": invalid.DoctorID})
	case errors.As(err, &unknown):
		writeError(c, http.StatusNotFound, "PATIENT_NOT_FOUND", "Patient not found", gin.H{"patient_id": unknown.PatientID})
	case errors.As(err, &noActive):
		writeError(c, http.StatusConflict, "NO_ACTIVE_CONSULTATION", "No consultation in progress", gin.H{"doctor_id": noActive.DoctorID})
	case errors.Is(err, queue.ErrNoDoctors):
		writeError(c, http.StatusServiceUnavailable, "NO_DOCTORS", "No doctors available", nil)
	default:
		h.Logger.Error().Err(err).Msg("queue operation failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
