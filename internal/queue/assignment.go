package queue

import (
	"sort"
	"time"

	"github.com/patientflow/backend/internal/estimator"
)

// Candidate is one doctor evaluated for automatic assignment.
type Candidate struct {
	DoctorID      int     `json:"doctor_id"`
	QueueLength   int     `json:"queue_length"`
	PredictedWait float64 `json:"predicted_wait"`
	Strategy      string  `json:"strategy"`

	features estimator.Features
}

// rankCandidates orders by predicted wait, then doctor id.
func rankCandidates(cands []Candidate) []Candidate {
	sorted := append([]Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PredictedWait != sorted[j].PredictedWait {
			return sorted[i].PredictedWait < sorted[j].PredictedWait
		}
		return sorted[i].DoctorID < sorted[j].DoctorID
	})
	return sorted
}

func (m *Manager) candidatesLocked(at time.Time) []Candidate {
	ids := m.doctors.IDs()
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		f := m.features(id, len(m.queues[id]), at)
		r := m.estimator.Estimate(f)
		out = append(out, Candidate{
			DoctorID:      id,
			QueueLength:   f.QueueLength,
			PredictedWait: r.Minutes,
			Strategy:      r.Strategy,
			features:      f,
		})
	}
	return rankCandidates(out)
}

// RankDoctors evaluates every doctor the way automatic assignment would for an appointment at
// the given time. The first entry is the doctor a registration would get. A zero time means now.
func (m *Manager) RankDoctors(at time.Time) []Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.IsZero() {
		at = m.now()
	}
	return m.candidatesLocked(at)
}
