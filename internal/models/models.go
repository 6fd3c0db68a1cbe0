package models

import "time"

type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusInConsultation Status = "in_consultation"
	StatusCompleted      Status = "completed"
)

// CanAdvanceTo reports whether next is the only allowed successor of s.
func (s Status) CanAdvanceTo(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusInConsultation
	case StatusInConsultation:
		return next == StatusCompleted
	default:
		return false
	}
}

type Patient struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	DoctorID             int              `json:"doctor_id"`
	AppointmentTime      time.Time        `json:"appointment_time"`
	ArrivalTime          time.Time        `json:"arrival_time"`
	Status               Status           `json:"status"`
	Position             int              `json:"position"`
	PredictedWait        float64          `json:"predicted_wait"`
	EarlyArrival         bool             `json:"early_arrival"`
	Prediction           PredictionRecord `json:"prediction"`
	ConsultationStart    *time.Time       `json:"consultation_start,omitempty"`
	ConsultationEnd      *time.Time       `json:"consultation_end,omitempty"`
	ConsultationDuration float64          `json:"consultation_duration,omitempty"`
	RegisteredAt         time.Time        `json:"registered_at"`
}

func (p *Patient) IsWaiting() bool {
	return p.Status == StatusWaiting
}

type DoctorProfile struct {
	ID                  int     `json:"id" mapstructure:"id" validate:"required,gt=0"`
	Name                string  `json:"name" mapstructure:"name" validate:"required"`
	Specialty           string  `json:"specialty" mapstructure:"specialty" validate:"required"`
	AvgConsultationTime float64 `json:"avg_consultation_time" mapstructure:"avg_consultation_time" validate:"gte=0"`
	CompletedCount      int     `json:"completed_count" mapstructure:"-"`
	CurrentPatientID    string  `json:"current_patient_id,omitempty" mapstructure:"-"`
}

func (d DoctorProfile) Busy() bool {
	return d.CurrentPatientID != ""
}

// PredictionRecord is the feature vector used for one estimate together with its result.
type PredictionRecord struct {
	DoctorID            int       `json:"doctor_id"`
	PatientID           string    `json:"patient_id,omitempty"`
	Hour                int       `json:"hour"`
	DayOfWeek           int       `json:"day_of_week"`
	QueueLength         int       `json:"queue_length"`
	AvgConsultationTime float64   `json:"avg_consultation_time"`
	PredictedMinutes    float64   `json:"predicted_minutes"`
	Strategy            string    `json:"strategy"`
	CreatedAt           time.Time `json:"created_at"`
}

// HistoricalRecord is one row of the training dataset.
type HistoricalRecord struct {
	DoctorID             int     `json:"doctor_id" validate:"gt=0"`
	Hour                 int     `json:"hour" validate:"gte=0,lte=23"`
	DayOfWeek            int     `json:"day_of_week" validate:"gte=0,lte=6"`
	QueueLengthAtArrival int     `json:"queue_length_at_arrival" validate:"gte=0"`
	AvgConsultationTime  float64 `json:"avg_consultation_time" validate:"gt=0"`
	ActualWaitMinutes    float64 `json:"actual_wait_minutes" validate:"gte=0"`
}

type WaitingPatient struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Position        int       `json:"position"`
	PredictedWait   float64   `json:"predicted_wait"`
	AppointmentTime time.Time `json:"appointment_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
}

type DoctorSnapshot struct {
	ID                  int              `json:"id"`
	Name                string           `json:"name"`
	Specialty           string           `json:"specialty"`
	AvgConsultationTime float64          `json:"avg_consultation_time"`
	CompletedCount      int              `json:"completed_count"`
	QueueLength         int              `json:"queue_length"`
	Busy                bool             `json:"busy"`
	CurrentPatientID    string           `json:"current_patient_id,omitempty"`
	Waiting             []WaitingPatient `json:"waiting"`
}

// SummaryWait is the queue_length * average approximation of the wait for a new arrival.
func (d DoctorSnapshot) SummaryWait() float64 {
	return float64(d.QueueLength) * d.AvgConsultationTime
}

// StatusCounts covers every patient the manager holds. Today and WaitingToday only count patients
// registered on the snapshot's calendar day.
type StatusCounts struct {
	Total          int `json:"total"`
	Waiting        int `json:"waiting"`
	InConsultation int `json:"in_consultation"`
	Completed      int `json:"completed"`
	DoctorsBusy    int `json:"doctors_busy"`
	Today          int `json:"today"`
	WaitingToday   int `json:"waiting_today"`
}

// Snapshot is a point-in-time copy of all queue and doctor state. Doctors are sorted by id.
type Snapshot struct {
	TakenAt time.Time        `json:"taken_at"`
	Doctors []DoctorSnapshot `json:"doctors"`
	Counts  StatusCounts     `json:"counts"`
}

func (s Snapshot) Doctor(id int) (DoctorSnapshot, bool) {
	for _, d := range s.Doctors {
		if d.ID == id {
			return d, true
		}
	}
	return DoctorSnapshot{}, false
}
