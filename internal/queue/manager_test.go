package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/patientflow/backend/internal/doctors"
	"github.com/patientflow/backend/internal/estimator"
	"github.com/patientflow/backend/internal/events"
	"github.com/patientflow/backend/internal/models"
)

// Monday 10:00.
var base = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	mgr      *Manager
	clock    *fakeClock
	recorder *events.Recorder
}

func newFixture(t *testing.T, profiles ...models.DoctorProfile) fixture {
	t.Helper()
	store := doctors.NewStore(15)
	for _, p := range profiles {
		if err := store.Add(p); err != nil {
			t.Fatalf("add doctor: %v", err)
		}
	}
	clock := &fakeClock{now: base}
	seq := 0
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec.Handle)
	mgr := New(store, estimator.New(nil, 15, zerolog.Nop()), zerolog.Nop(), Options{
		Clock: clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("p%d", seq)
		},
		Publisher: bus,
	})
	return fixture{mgr: mgr, clock: clock, recorder: rec}
}

func doctor(id int, specialty string, avg float64) models.DoctorProfile {
	return models.DoctorProfile{ID: id, Name: fmt.Sprintf("Dr. %d", id), Specialty: specialty, AvgConsultationTime: avg}
}

func intPtr(v int) *int { return &v }

func (f fixture) register(t *testing.T, name string, doctorID *int, appt time.Time) models.Patient {
	t.Helper()
	p, err := f.mgr.Register(RegisterRequest{Name: name, AppointmentTime: appt, ArrivalTime: f.clock.now, PreferredDoctorID: doctorID})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return p
}

func TestAutoAssignPicksShortestWait(t *testing.T) {
	f := newFixture(t, doctor(1, "Cardiology", 10), doctor(2, "Cardiology", 10))
	for i := 0; i < 3; i++ {
		f.register(t, fmt.Sprintf("busy-%d", i), intPtr(2), base)
	}

	p := f.register(t, "auto", nil, base)
	if p.DoctorID != 1 {
		t.Fatalf("expected doctor 1, got %d", p.DoctorID)
	}
	if p.PredictedWait != 0 || p.Position != 1 {
		t.Fatalf("expected empty-queue wait 0 at position 1, got %+v", p)
	}
	if p.Prediction.Strategy != estimator.StrategyFallback || p.Prediction.QueueLength != 0 {
		t.Fatalf("unexpected prediction record %+v", p.Prediction)
	}
}

func TestAutoAssignTieGoesToLowestID(t *testing.T) {
	f := newFixture(t, doctor(3, "Dermatology", 10), doctor(1, "Dermatology", 10), doctor(2, "Dermatology", 10))
	p := f.register(t, "first", nil, base)
	if p.DoctorID != 1 {
		t.Fatalf("expected lowest id on tie, got %d", p.DoctorID)
	}
	p = f.register(t, "second", nil, base)
	if p.DoctorID != 2 {
		t.Fatalf("expected doctor 2 next, got %d", p.DoctorID)
	}
}

func TestAutoAssignIsDeterministic(t *testing.T) {
	run := func() []int {
		f := newFixture(t, doctor(1, "A", 12), doctor(2, "A", 8), doctor(3, "B", 20))
		var out []int
		for i := 0; i < 10; i++ {
			out = append(out, f.register(t, fmt.Sprintf("p-%d", i), nil, base).DoctorID)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("assignments diverged at %d: %v vs %v", i, a, b)
		}
	}
}

func TestRegisterUnknownPreferredDoctor(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	_, err := f.mgr.Register(RegisterRequest{Name: "x", PreferredDoctorID: intPtr(99)})
	var invalid *InvalidDoctorError
	if !errors.As(err, &invalid) || invalid.DoctorID != 99 || !errors.Is(err, ErrInvalidDoctor) {
		t.Fatalf("expected InvalidDoctorError, got %v", err)
	}
	if len(f.mgr.Patients()) != 0 || len(f.mgr.Predictions()) != 0 || len(f.recorder.Events()) != 0 {
		t.Fatalf("failed registration must not mutate state")
	}
}

func TestRegisterWithoutDoctors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Register(RegisterRequest{Name: "x"}); !errors.Is(err, ErrNoDoctors) {
		t.Fatalf("expected ErrNoDoctors, got %v", err)
	}
}

func TestPositionsFollowAppointmentOrder(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	late := f.register(t, "late", intPtr(1), base.Add(30*time.Minute))
	early := f.register(t, "early", intPtr(1), base.Add(10*time.Minute))

	if pos, _ := f.mgr.QueuePosition(early.ID); pos != 1 {
		t.Fatalf("expected earlier appointment at head, got %d", pos)
	}
	if pos, _ := f.mgr.QueuePosition(late.ID); pos != 2 {
		t.Fatalf("expected later appointment second, got %d", pos)
	}
	if early.Prediction.QueueLength != 0 || early.PredictedWait != 0 {
		t.Fatalf("patient inserted at head should see nobody ahead, got %+v", early.Prediction)
	}

	moved := f.recorder.OfKind(events.KindQueuePositionChanged)
	if len(moved) != 1 || moved[0].PatientID != late.ID || moved[0].Position != 2 {
		t.Fatalf("expected one position change for the displaced patient, got %+v", moved)
	}
}

func TestDisplacedPatientsAreReestimated(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	a := f.register(t, "a", intPtr(1), base.Add(10*time.Minute))
	b := f.register(t, "b", intPtr(1), base.Add(15*time.Minute))
	f.register(t, "c", intPtr(1), base.Add(5*time.Minute))

	for _, tc := range []struct {
		id   string
		pos  int
		wait float64
	}{{a.ID, 2, 10}, {b.ID, 3, 20}} {
		p, err := f.mgr.Patient(tc.id)
		if err != nil {
			t.Fatalf("patient %s: %v", tc.id, err)
		}
		if p.Position != tc.pos || p.PredictedWait != tc.wait {
			t.Fatalf("patient %s: expected position %d wait %v, got %d %v", tc.id, tc.pos, tc.wait, p.Position, p.PredictedWait)
		}
	}

	moved := f.recorder.OfKind(events.KindQueuePositionChanged)
	if len(moved) != 2 {
		t.Fatalf("expected two position changes, got %+v", moved)
	}
	if moved[0].PatientID != a.ID || moved[0].Position != 2 || moved[0].PredictedWait != 10 {
		t.Fatalf("unexpected event for a: %+v", moved[0])
	}
	if moved[1].PatientID != b.ID || moved[1].Position != 3 || moved[1].PredictedWait != 20 {
		t.Fatalf("unexpected event for b: %+v", moved[1])
	}
}

func TestEqualAppointmentsKeepRegistrationOrder(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	a := f.register(t, "a", intPtr(1), base)
	b := f.register(t, "b", intPtr(1), base)
	c := f.register(t, "c", intPtr(1), base)
	for want, id := range []string{a.ID, b.ID, c.ID} {
		if pos, _ := f.mgr.QueuePosition(id); pos != want+1 {
			t.Fatalf("patient %s: expected position %d, got %d", id, want+1, pos)
		}
	}
	if c.PredictedWait != 20 || c.Prediction.QueueLength != 2 {
		t.Fatalf("expected 2 * 10 for third patient, got %+v", c.Prediction)
	}
}

func TestEarlyArrivalWaitsForSlot(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	p := f.register(t, "early bird", intPtr(1), base.Add(45*time.Minute))
	if !p.EarlyArrival {
		t.Fatalf("expected early arrival flag")
	}
	if p.PredictedWait != 45 {
		t.Fatalf("expected wait until appointment (45), got %v", p.PredictedWait)
	}

	onTime := f.register(t, "on time", intPtr(1), base.Add(15*time.Minute))
	if onTime.EarlyArrival {
		t.Fatalf("15 minutes ahead is within the threshold")
	}
	if pos, _ := f.mgr.QueuePosition(onTime.ID); pos != 1 {
		t.Fatalf("expected earlier appointment ahead of early arrival, got %d", pos)
	}
}

func TestStartConsultationAdvancesQueue(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	first := f.register(t, "first", intPtr(1), base)
	second := f.register(t, "second", intPtr(1), base)
	third := f.register(t, "third", intPtr(1), base)

	started, err := f.mgr.StartConsultation(1)
	if err != nil || started == nil {
		t.Fatalf("start: %v %v", started, err)
	}
	if started.ID != first.ID || started.Status != models.StatusInConsultation || started.ConsultationStart == nil {
		t.Fatalf("unexpected started patient %+v", started)
	}
	if pos, _ := f.mgr.QueuePosition(first.ID); pos != 0 {
		t.Fatalf("patient in consultation has no position, got %d", pos)
	}
	if pos, _ := f.mgr.QueuePosition(second.ID); pos != 1 {
		t.Fatalf("expected second at head, got %d", pos)
	}
	if pos, _ := f.mgr.QueuePosition(third.ID); pos != 2 {
		t.Fatalf("expected third at 2, got %d", pos)
	}

	refreshed, _ := f.mgr.Patient(third.ID)
	if refreshed.PredictedWait != 10 {
		t.Fatalf("expected refreshed wait 10, got %v", refreshed.PredictedWait)
	}
	if got := f.recorder.OfKind(events.KindConsultationStarted); len(got) != 1 || got[0].PatientID != first.ID {
		t.Fatalf("expected consultation_started event, got %+v", got)
	}
}

func TestAtMostOneConsultationPerDoctor(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	f.register(t, "a", intPtr(1), base)
	b := f.register(t, "b", intPtr(1), base)

	if _, err := f.mgr.StartConsultation(1); err != nil {
		t.Fatalf("start: %v", err)
	}
	again, err := f.mgr.StartConsultation(1)
	if err != nil || again != nil {
		t.Fatalf("expected no-op while busy, got %v %v", again, err)
	}
	if pos, _ := f.mgr.QueuePosition(b.ID); pos != 1 {
		t.Fatalf("busy doctor must not dequeue, got position %d", pos)
	}
	snap := f.mgr.Snapshot()
	if snap.Counts.InConsultation != 1 || snap.Counts.DoctorsBusy != 1 {
		t.Fatalf("unexpected counts %+v", snap.Counts)
	}
}

func TestStartConsultationEmptyQueue(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	p, err := f.mgr.StartConsultation(1)
	if err != nil || p != nil {
		t.Fatalf("expected nil patient without error, got %v %v", p, err)
	}
	if _, err := f.mgr.StartConsultation(7); !errors.Is(err, ErrInvalidDoctor) {
		t.Fatalf("expected ErrInvalidDoctor, got %v", err)
	}
}

func TestCompleteConsultationKeepsWaitingPatient(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	p2 := f.register(t, "p2", intPtr(1), base)
	p1 := f.register(t, "p1", intPtr(1), base)
	if _, err := f.mgr.StartConsultation(1); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(8 * time.Minute)
	done, err := f.mgr.CompleteConsultation(1)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.ID != p2.ID || done.Status != models.StatusCompleted || done.ConsultationDuration != 8 {
		t.Fatalf("unexpected completed patient %+v", done)
	}

	snap := f.mgr.Snapshot()
	d, _ := snap.Doctor(1)
	if d.AvgConsultationTime != 8 || d.CompletedCount != 1 || d.Busy {
		t.Fatalf("unexpected doctor state %+v", d)
	}
	waiting, _ := f.mgr.Patient(p1.ID)
	if waiting.Status != models.StatusWaiting || waiting.Position != 1 {
		t.Fatalf("expected p1 waiting at 1, got %+v", waiting)
	}
	if snap.Counts.Completed != 1 || snap.Counts.Waiting != 1 || snap.Counts.Total != 2 {
		t.Fatalf("unexpected counts %+v", snap.Counts)
	}
}

func TestRunningAverage(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	for _, minutes := range []time.Duration{6, 12} {
		f.register(t, "p", intPtr(1), f.clock.now)
		if _, err := f.mgr.StartConsultation(1); err != nil {
			t.Fatalf("start: %v", err)
		}
		f.clock.Advance(minutes * time.Minute)
		if _, err := f.mgr.CompleteConsultation(1); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	d, _ := f.mgr.Snapshot().Doctor(1)
	if d.AvgConsultationTime != 9 || d.CompletedCount != 2 {
		t.Fatalf("expected mean 9 over 2, got %+v", d)
	}
}

func TestCompleteTwiceFails(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	f.register(t, "a", intPtr(1), base)
	if _, err := f.mgr.StartConsultation(1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.mgr.CompleteConsultation(1); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	_, err := f.mgr.CompleteConsultation(1)
	var noActive *NoActiveConsultationError
	if !errors.As(err, &noActive) || noActive.DoctorID != 1 {
		t.Fatalf("expected NoActiveConsultationError, got %v", err)
	}
	if _, err := f.mgr.CompleteConsultation(42); !errors.Is(err, ErrInvalidDoctor) {
		t.Fatalf("expected ErrInvalidDoctor, got %v", err)
	}
}

func TestStatusNeverMovesBackwards(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	p := f.register(t, "a", intPtr(1), base)
	order := map[models.Status]int{models.StatusWaiting: 0, models.StatusInConsultation: 1, models.StatusCompleted: 2}
	last := 0
	check := func() {
		got, _ := f.mgr.Patient(p.ID)
		if order[got.Status] < last {
			t.Fatalf("status went backwards to %s", got.Status)
		}
		last = order[got.Status]
	}
	check()
	f.mgr.StartConsultation(1)
	check()
	f.mgr.StartConsultation(1)
	check()
	f.mgr.CompleteConsultation(1)
	check()
	f.mgr.CompleteConsultation(1)
	check()
	if last != 2 {
		t.Fatalf("expected completed, ended at rank %d", last)
	}
}

func TestUnknownPatient(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	if _, err := f.mgr.QueuePosition("nope"); !errors.Is(err, ErrUnknownPatient) {
		t.Fatalf("expected ErrUnknownPatient, got %v", err)
	}
	if _, err := f.mgr.Patient("nope"); !errors.Is(err, ErrUnknownPatient) {
		t.Fatalf("expected ErrUnknownPatient, got %v", err)
	}
}

func TestEventSequence(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	a := f.register(t, "a", intPtr(1), base)
	b := f.register(t, "b", intPtr(1), base)
	f.mgr.StartConsultation(1)
	f.mgr.CompleteConsultation(1)

	want := []events.Kind{
		events.KindPatientRegistered,
		events.KindPatientRegistered,
		events.KindConsultationStarted,
		events.KindQueuePositionChanged,
		events.KindConsultationCompleted,
	}
	got := f.recorder.Events()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Fatalf("event %d: expected %s, got %s", i, k, got[i].Kind)
		}
	}
	if got[3].PatientID != b.ID || got[3].Position != 1 {
		t.Fatalf("unexpected position change %+v", got[3])
	}
	if got[4].PatientID != a.ID {
		t.Fatalf("unexpected completion %+v", got[4])
	}
}

func TestPredictionAuditTrail(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	f.register(t, "a", intPtr(1), base)
	f.register(t, "b", intPtr(1), base)
	if n := len(f.mgr.Predictions()); n != 2 {
		t.Fatalf("expected 2 predictions, got %d", n)
	}
	if err := f.mgr.RefreshEstimates(1); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	preds := f.mgr.Predictions()
	if len(preds) != 4 {
		t.Fatalf("expected refresh to append 2 records, got %d", len(preds))
	}
	if preds[1].QueueLength != 1 || preds[1].PredictedMinutes != 10 || preds[1].DayOfWeek != 0 || preds[1].Hour != 10 {
		t.Fatalf("unexpected record %+v", preds[1])
	}
	if err := f.mgr.RefreshEstimates(5); !errors.Is(err, ErrInvalidDoctor) {
		t.Fatalf("expected ErrInvalidDoctor, got %v", err)
	}
}

func TestQueueLength(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	f.register(t, "a", intPtr(1), base)
	if n, err := f.mgr.QueueLength(1); err != nil || n != 1 {
		t.Fatalf("expected 1, got %d %v", n, err)
	}
	if _, err := f.mgr.QueueLength(2); !errors.Is(err, ErrInvalidDoctor) {
		t.Fatalf("expected ErrInvalidDoctor, got %v", err)
	}
}

func TestConcurrentOperationsKeepInvariants(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10), doctor(2, "A", 12), doctor(3, "B", 8))

	const workers, rounds = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				appt := base.Add(time.Duration((w*rounds+i)%11) * time.Minute)
				req := RegisterRequest{Name: fmt.Sprintf("w%d-%d", w, i), AppointmentTime: appt, ArrivalTime: base}
				if i%3 == 0 {
					req.PreferredDoctorID = intPtr(1 + w%3)
				}
				if _, err := f.mgr.Register(req); err != nil {
					t.Errorf("register: %v", err)
					return
				}
				doctorID := 1 + (w+i)%3
				if _, err := f.mgr.StartConsultation(doctorID); err != nil {
					t.Errorf("start: %v", err)
					return
				}
				if _, err := f.mgr.CompleteConsultation(doctorID); err != nil && !errors.Is(err, ErrNoActiveConsultation) {
					t.Errorf("complete: %v", err)
					return
				}
				if i%10 == 0 {
					checkInvariants(t, f.mgr)
				}
			}
		}(w)
	}
	wg.Wait()
	checkInvariants(t, f.mgr)

	snap := f.mgr.Snapshot()
	c := snap.Counts
	if c.Total != workers*rounds || c.Waiting+c.InConsultation+c.Completed != c.Total {
		t.Fatalf("unexpected counts %+v", c)
	}
}

func checkInvariants(t *testing.T, m *Manager) {
	t.Helper()
	active := map[int]int{}
	for _, p := range m.Patients() {
		if p.Status == models.StatusInConsultation {
			active[p.DoctorID]++
		}
	}
	for id, n := range active {
		if n > 1 {
			t.Errorf("doctor %d has %d patients in consultation", id, n)
		}
	}
	for _, d := range m.Snapshot().Doctors {
		for i := 1; i < len(d.Waiting); i++ {
			prev, cur := d.Waiting[i-1], d.Waiting[i]
			if cur.AppointmentTime.Before(prev.AppointmentTime) {
				t.Errorf("doctor %d: %s queued after %s with an earlier appointment", d.ID, cur.ID, prev.ID)
			}
			if cur.Position != i+1 {
				t.Errorf("doctor %d: %s at index %d has position %d", d.ID, cur.ID, i, cur.Position)
			}
		}
	}
}

func TestSnapshotCountsToday(t *testing.T) {
	f := newFixture(t, doctor(1, "A", 10))
	f.register(t, "yesterday", intPtr(1), base)
	f.clock.Advance(24 * time.Hour)
	f.register(t, "today", intPtr(1), f.clock.now)

	c := f.mgr.Snapshot().Counts
	if c.Total != 2 || c.Waiting != 2 || c.Today != 1 || c.WaitingToday != 1 {
		t.Fatalf("unexpected counts %+v", c)
	}
}
