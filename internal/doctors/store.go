package doctors

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/patientflow/backend/internal/models"
)

var ErrDuplicateDoctor = errors.New("doctor already registered")

// Store holds doctor profiles. It has no locking of its own: the queue manager owns it and
// serializes every access.
type Store struct {
	profiles   map[int]*models.DoctorProfile
	defaultAvg float64
	validate   *validator.Validate
}

func NewStore(defaultAvg float64) *Store {
	if defaultAvg <= 0 {
		defaultAvg = 15
	}
	return &Store{
		profiles:   map[int]*models.DoctorProfile{},
		defaultAvg: defaultAvg,
		validate:   validator.New(),
	}
}

// Add registers a profile. A zero average is replaced by the store default.
func (s *Store) Add(p models.DoctorProfile) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("doctor %d: %w", p.ID, err)
	}
	if _, ok := s.profiles[p.ID]; ok {
		return fmt.Errorf("doctor %d: %w", p.ID, ErrDuplicateDoctor)
	}
	if p.AvgConsultationTime <= 0 {
		p.AvgConsultationTime = s.defaultAvg
	}
	p.CompletedCount = 0
	p.CurrentPatientID = ""
	s.profiles[p.ID] = &p
	return nil
}

func (s *Store) Get(id int) (models.DoctorProfile, bool) {
	p, ok := s.profiles[id]
	if !ok {
		return models.DoctorProfile{}, false
	}
	return *p, true
}

func (s *Store) Exists(id int) bool {
	_, ok := s.profiles[id]
	return ok
}

// IDs returns all doctor ids in ascending order.
func (s *Store) IDs() []int {
	ids := make([]int, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Store) List() []models.DoctorProfile {
	out := make([]models.DoctorProfile, 0, len(s.profiles))
	for _, id := range s.IDs() {
		out = append(out, *s.profiles[id])
	}
	return out
}

func (s *Store) Len() int {
	return len(s.profiles)
}

// AvgConsultationTime falls back to the store default for unknown doctors.
func (s *Store) AvgConsultationTime(id int) float64 {
	if p, ok := s.profiles[id]; ok && p.AvgConsultationTime > 0 {
		return p.AvgConsultationTime
	}
	return s.defaultAvg
}

func (s *Store) SetCurrent(id int, patientID string) {
	if p, ok := s.profiles[id]; ok {
		p.CurrentPatientID = patientID
	}
}

// RecordCompletion folds one finished consultation into the running mean. Seed averages carry
// no weight, so the first completion replaces them.
func (s *Store) RecordCompletion(id int, minutes float64) (models.DoctorProfile, bool) {
	p, ok := s.profiles[id]
	if !ok {
		return models.DoctorProfile{}, false
	}
	if minutes < 0 {
		minutes = 0
	}
	p.CompletedCount++
	p.AvgConsultationTime += (minutes - p.AvgConsultationTime) / float64(p.CompletedCount)
	p.CurrentPatientID = ""
	return *p, true
}
