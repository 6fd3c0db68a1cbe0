package events

import (
	"sync"
	"time"
)

type Kind string

const (
	KindPatientRegistered     Kind = "patient_registered"
	KindConsultationStarted   Kind = "consultation_started"
	KindQueuePositionChanged  Kind = "queue_position_changed"
	KindConsultationCompleted Kind = "consultation_completed"
)

// Event is raised by the queue manager. Delivery and formatting belong to subscribers.
type Event struct {
	Kind          Kind      `json:"type"`
	PatientID     string    `json:"patient_id"`
	DoctorID      int       `json:"doctor_id"`
	PredictedWait float64   `json:"predicted_wait"`
	Position      int       `json:"new_position,omitempty"`
	At            time.Time `json:"at"`
}

func PatientRegistered(patientID string, doctorID int, predictedWait float64, at time.Time) Event {
	return Event{Kind: KindPatientRegistered, PatientID: patientID, DoctorID: doctorID, PredictedWait: predictedWait, At: at}
}

func ConsultationStarted(patientID string, doctorID int, at time.Time) Event {
	return Event{Kind: KindConsultationStarted, PatientID: patientID, DoctorID: doctorID, At: at}
}

func QueuePositionChanged(patientID string, doctorID, position int, predictedWait float64, at time.Time) Event {
	return Event{Kind: KindQueuePositionChanged, PatientID: patientID, DoctorID: doctorID, Position: position, PredictedWait: predictedWait, At: at}
}

func ConsultationCompleted(patientID string, doctorID int, at time.Time) Event {
	return Event{Kind: KindConsultationCompleted, PatientID: patientID, DoctorID: doctorID, At: at}
}

type Handler func(Event)

type Publisher interface {
	Publish(evs ...Event)
}

// Bus fans events out to subscribers synchronously, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(evs ...Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()
	for _, ev := range evs {
		for _, h := range handlers {
			h(ev)
		}
	}
}

// Recorder keeps every published event. Useful as a subscriber in tests and for history views.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfKind(kind Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
