package queue

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientflow/backend/internal/doctors"
	"github.com/patientflow/backend/internal/estimator"
	"github.com/patientflow/backend/internal/events"
	"github.com/patientflow/backend/internal/models"
)

const DefaultEarlyArrivalThreshold = 20 * time.Minute

// WaitEstimator is the read-only view of the wait-time estimator the manager needs.
type WaitEstimator interface {
	Estimate(f estimator.Features) estimator.Result
}

type Options struct {
	EarlyArrivalThreshold time.Duration
	Clock                 func() time.Time
	NewID                 func() string
	Publisher             events.Publisher
}

type RegisterRequest struct {
	Name            string
	AppointmentTime time.Time
	ArrivalTime     time.Time
	// PreferredDoctorID is nil for automatic assignment.
	PreferredDoctorID *int
}

// Manager owns every patient, every per-doctor queue and the doctor profile store.
// All mutations run under a single mutex; events are published after it is released.
type Manager struct {
	mu sync.Mutex

	doctors        *doctors.Store
	estimator      WaitEstimator
	publisher      events.Publisher
	logger         zerolog.Logger
	now            func() time.Time
	newID          func() string
	earlyThreshold time.Duration

	patients    map[string]*models.Patient
	registered  []string
	queues      map[int][]*models.Patient
	predictions []models.PredictionRecord
}

func New(store *doctors.Store, est WaitEstimator, logger zerolog.Logger, opts Options) *Manager {
	m := &Manager{
		doctors:        store,
		estimator:      est,
		publisher:      opts.Publisher,
		logger:         logger,
		now:            opts.Clock,
		newID:          opts.NewID,
		earlyThreshold: opts.EarlyArrivalThreshold,
		patients:       map[string]*models.Patient{},
		queues:         map[int][]*models.Patient{},
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.earlyThreshold <= 0 {
		m.earlyThreshold = DefaultEarlyArrivalThreshold
	}
	return m
}

// Register assigns the patient to a doctor, enqueues them and records the initial prediction.
// Nothing is mutated unless the whole registration succeeds.
func (m *Manager) Register(req RegisterRequest) (models.Patient, error) {
	m.mu.Lock()
	p, evs, err := m.registerLocked(req)
	m.mu.Unlock()
	if err != nil {
		return models.Patient{}, err
	}
	m.publish(evs)
	return p, nil
}

func (m *Manager) registerLocked(req RegisterRequest) (models.Patient, []events.Event, error) {
	now := m.now()
	appt := req.AppointmentTime
	if appt.IsZero() {
		appt = now
	}
	arrival := req.ArrivalTime
	if arrival.IsZero() {
		arrival = now
	}

	var (
		doctorID int
		result   estimator.Result
		features estimator.Features
	)
	if req.PreferredDoctorID != nil {
		doctorID = *req.PreferredDoctorID
		if !m.doctors.Exists(doctorID) {
			return models.Patient{}, nil, &InvalidDoctorError{DoctorID: doctorID}
		}
		features = m.features(doctorID, len(m.queues[doctorID]), appt)
		result = m.estimator.Estimate(features)
	} else {
		ranked := m.candidatesLocked(appt)
		if len(ranked) == 0 {
			return models.Patient{}, nil, ErrNoDoctors
		}
		best := ranked[0]
		doctorID, features = best.DoctorID, best.features
		result = estimator.Result{Minutes: best.PredictedWait, Strategy: best.Strategy}
	}

	p := &models.Patient{
		ID:              m.newID(),
		Name:            req.Name,
		DoctorID:        doctorID,
		AppointmentTime: appt,
		ArrivalTime:     arrival,
		Status:          models.StatusWaiting,
		EarlyArrival:    appt.Sub(arrival) > m.earlyThreshold,
		RegisteredAt:    now,
	}
	idx := m.insertionIndex(p)
	if idx < len(m.queues[doctorID]) {
		// Inserted ahead of later appointments: only the patients in front of p count.
		features = m.features(doctorID, idx, appt)
		result = m.estimator.Estimate(features)
	}
	p.PredictedWait = m.adjustForEarlyArrival(p, result.Minutes, arrival)
	p.Prediction = m.record(p, features, result, now)

	m.insertAt(p, idx)
	p.Position = idx + 1
	m.patients[p.ID] = p
	m.registered = append(m.registered, p.ID)

	evs := []events.Event{events.PatientRegistered(p.ID, doctorID, p.PredictedWait, now)}
	queue := m.queues[doctorID]
	for i := idx + 1; i < len(queue); i++ {
		q := queue[i]
		m.reestimateLocked(q, i, q.AppointmentTime, now)
		evs = append(evs, events.QueuePositionChanged(q.ID, doctorID, q.Position, q.PredictedWait, now))
	}

	m.logger.Debug().
		Str("patient_id", p.ID).
		Int("doctor_id", doctorID).
		Int("position", p.Position).
		Float64("predicted_wait", p.PredictedWait).
		Str("strategy", result.Strategy).
		Bool("early_arrival", p.EarlyArrival).
		Msg("patient registered")
	return *p, evs, nil
}

// insertionIndex orders by appointment time, then arrival time, after any patient with equal keys.
func (m *Manager) insertionIndex(p *models.Patient) int {
	queue := m.queues[p.DoctorID]
	for i, q := range queue {
		if before(p, q) {
			return i
		}
	}
	return len(queue)
}

func (m *Manager) insertAt(p *models.Patient, idx int) {
	queue := append(m.queues[p.DoctorID], nil)
	copy(queue[idx+1:], queue[idx:])
	queue[idx] = p
	m.queues[p.DoctorID] = queue
}

func before(a, b *models.Patient) bool {
	if !a.AppointmentTime.Equal(b.AppointmentTime) {
		return a.AppointmentTime.Before(b.AppointmentTime)
	}
	return a.ArrivalTime.Before(b.ArrivalTime)
}

// adjustForEarlyArrival keeps early arrivals ordered by appointment but measures their wait
// from the moment given: they cannot be seen before their slot.
func (m *Manager) adjustForEarlyArrival(p *models.Patient, minutes float64, from time.Time) float64 {
	if !p.EarlyArrival {
		return minutes
	}
	untilSlot := p.AppointmentTime.Sub(from).Minutes()
	return math.Max(minutes, untilSlot)
}

func (m *Manager) features(doctorID, queueLength int, at time.Time) estimator.Features {
	return estimator.FeaturesAt(doctorID, queueLength, m.doctors.AvgConsultationTime(doctorID), at)
}

func (m *Manager) record(p *models.Patient, f estimator.Features, r estimator.Result, now time.Time) models.PredictionRecord {
	rec := models.PredictionRecord{
		DoctorID:            f.DoctorID,
		PatientID:           p.ID,
		Hour:                f.Hour,
		DayOfWeek:           f.DayOfWeek,
		QueueLength:         f.QueueLength,
		AvgConsultationTime: f.AvgConsultationTime,
		PredictedMinutes:    p.PredictedWait,
		Strategy:            r.Strategy,
		CreatedAt:           now,
	}
	m.predictions = append(m.predictions, rec)
	return rec
}

// QueuePosition returns the 1-based rank of a waiting patient, or 0 once they left the queue.
func (m *Manager) QueuePosition(patientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[patientID]
	if !ok {
		return 0, &UnknownPatientError{PatientID: patientID}
	}
	return m.positionLocked(p), nil
}

func (m *Manager) positionLocked(p *models.Patient) int {
	if !p.IsWaiting() {
		return 0
	}
	for i, q := range m.queues[p.DoctorID] {
		if q.ID == p.ID {
			return i + 1
		}
	}
	return 0
}

// StartConsultation moves the head of the doctor's queue into consultation. A nil patient with a
// nil error means the queue is empty or the doctor is already busy.
func (m *Manager) StartConsultation(doctorID int) (*models.Patient, error) {
	m.mu.Lock()
	p, evs, err := m.startLocked(doctorID)
	m.mu.Unlock()
	if err != nil || p == nil {
		return nil, err
	}
	m.publish(evs)
	return p, nil
}

func (m *Manager) startLocked(doctorID int) (*models.Patient, []events.Event, error) {
	profile, ok := m.doctors.Get(doctorID)
	if !ok {
		return nil, nil, &InvalidDoctorError{DoctorID: doctorID}
	}
	if profile.Busy() {
		m.logger.Debug().Int("doctor_id", doctorID).Msg("consultation already active")
		return nil, nil, nil
	}
	queue := m.queues[doctorID]
	if len(queue) == 0 {
		return nil, nil, nil
	}

	now := m.now()
	head := queue[0]
	queue[0] = nil
	m.queues[doctorID] = queue[1:]

	head.Status = models.StatusInConsultation
	head.Position = 0
	started := now
	head.ConsultationStart = &started
	m.doctors.SetCurrent(doctorID, head.ID)

	evs := []events.Event{events.ConsultationStarted(head.ID, doctorID, now)}
	evs = append(evs, m.refreshLocked(doctorID, now, true)...)

	m.logger.Debug().Str("patient_id", head.ID).Int("doctor_id", doctorID).Msg("consultation started")
	out := *head
	return &out, evs, nil
}

// refreshLocked recomputes positions and predicted waits of the doctor's waiting patients, each
// against the number of patients ahead of them.
func (m *Manager) refreshLocked(doctorID int, now time.Time, moved bool) []events.Event {
	var evs []events.Event
	for i, p := range m.queues[doctorID] {
		m.reestimateLocked(p, i, now, now)
		if moved {
			evs = append(evs, events.QueuePositionChanged(p.ID, doctorID, p.Position, p.PredictedWait, now))
		}
	}
	return evs
}

// reestimateLocked gives a waiting patient a fresh prediction with ahead patients in front of them,
// taking the hour and day from at.
func (m *Manager) reestimateLocked(p *models.Patient, ahead int, at, now time.Time) {
	f := m.features(p.DoctorID, ahead, at)
	r := m.estimator.Estimate(f)
	from := now
	if p.ArrivalTime.After(now) {
		from = p.ArrivalTime
	}
	p.PredictedWait = m.adjustForEarlyArrival(p, r.Minutes, from)
	m.record(p, f, r, now)
	p.Position = ahead + 1
}

// RefreshEstimates recomputes the predicted waits of one doctor's queue without moving anyone.
func (m *Manager) RefreshEstimates(doctorID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.doctors.Exists(doctorID) {
		return &InvalidDoctorError{DoctorID: doctorID}
	}
	m.refreshLocked(doctorID, m.now(), false)
	return nil
}

// CompleteConsultation finishes the doctor's active consultation and folds its duration into the
// doctor's running average. Calling it again without a new start fails.
func (m *Manager) CompleteConsultation(doctorID int) (models.Patient, error) {
	m.mu.Lock()
	p, evs, err := m.completeLocked(doctorID)
	m.mu.Unlock()
	if err != nil {
		return models.Patient{}, err
	}
	m.publish(evs)
	return p, nil
}

func (m *Manager) completeLocked(doctorID int) (models.Patient, []events.Event, error) {
	profile, ok := m.doctors.Get(doctorID)
	if !ok {
		return models.Patient{}, nil, &InvalidDoctorError{DoctorID: doctorID}
	}
	p, ok := m.patients[profile.CurrentPatientID]
	if !profile.Busy() || !ok || !p.Status.CanAdvanceTo(models.StatusCompleted) {
		return models.Patient{}, nil, &NoActiveConsultationError{DoctorID: doctorID}
	}

	now := m.now()
	ended := now
	p.Status = models.StatusCompleted
	p.ConsultationEnd = &ended
	if p.ConsultationStart != nil {
		p.ConsultationDuration = math.Max(0, now.Sub(*p.ConsultationStart).Minutes())
	}
	updated, _ := m.doctors.RecordCompletion(doctorID, p.ConsultationDuration)

	m.logger.Debug().
		Str("patient_id", p.ID).
		Int("doctor_id", doctorID).
		Float64("duration", p.ConsultationDuration).
		Float64("avg_consultation_time", updated.AvgConsultationTime).
		Msg("consultation completed")
	return *p, []events.Event{events.ConsultationCompleted(p.ID, doctorID, now)}, nil
}

// Patient returns a copy of the patient with their live queue position.
func (m *Manager) Patient(patientID string) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[patientID]
	if !ok {
		return models.Patient{}, &UnknownPatientError{PatientID: patientID}
	}
	out := *p
	out.Position = m.positionLocked(p)
	return out, nil
}

// Patients lists every patient ever registered, in registration order.
func (m *Manager) Patients() []models.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Patient, 0, len(m.registered))
	for _, id := range m.registered {
		p := *m.patients[id]
		p.Position = m.positionLocked(m.patients[id])
		out = append(out, p)
	}
	return out
}

// Predictions returns the prediction audit trail, oldest first.
func (m *Manager) Predictions() []models.PredictionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PredictionRecord(nil), m.predictions...)
}

func (m *Manager) QueueLength(doctorID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.doctors.Exists(doctorID) {
		return 0, &InvalidDoctorError{DoctorID: doctorID}
	}
	return len(m.queues[doctorID]), nil
}

// Snapshot copies the complete queue and doctor state.
func (m *Manager) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := models.Snapshot{TakenAt: m.now()}
	for _, d := range m.doctors.List() {
		queue := m.queues[d.ID]
		ds := models.DoctorSnapshot{
			ID:                  d.ID,
			Name:                d.Name,
			Specialty:           d.Specialty,
			AvgConsultationTime: d.AvgConsultationTime,
			CompletedCount:      d.CompletedCount,
			QueueLength:         len(queue),
			Busy:                d.Busy(),
			CurrentPatientID:    d.CurrentPatientID,
			Waiting:             make([]models.WaitingPatient, 0, len(queue)),
		}
		for i, p := range queue {
			ds.Waiting = append(ds.Waiting, models.WaitingPatient{
				ID:              p.ID,
				Name:            p.Name,
				Position:        i + 1,
				PredictedWait:   p.PredictedWait,
				AppointmentTime: p.AppointmentTime,
				ArrivalTime:     p.ArrivalTime,
			})
		}
		if ds.Busy {
			snap.Counts.DoctorsBusy++
		}
		snap.Doctors = append(snap.Doctors, ds)
	}

	for _, p := range m.patients {
		today := sameDay(p.RegisteredAt, snap.TakenAt)
		snap.Counts.Total++
		if today {
			snap.Counts.Today++
		}
		switch p.Status {
		case models.StatusWaiting:
			snap.Counts.Waiting++
			if today {
				snap.Counts.WaitingToday++
			}
		case models.StatusInConsultation:
			snap.Counts.InConsultation++
		case models.StatusCompleted:
			snap.Counts.Completed++
		}
	}
	return snap
}

// sameDay compares calendar dates in ref's location.
func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (m *Manager) publish(evs []events.Event) {
	if m.publisher == nil || len(evs) == 0 {
		return
	}
	m.publisher.Publish(evs...)
}
