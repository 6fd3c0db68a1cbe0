package estimator

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// ErrModelUnavailable is returned by a strategy that cannot evaluate the given input.
// Estimator.Estimate absorbs it and answers with the fallback.
var ErrModelUnavailable = errors.New("wait-time model unavailable")

const (
	StrategyLearned  = "learned"
	StrategyFallback = "fallback"

	DefaultConsultMinutes = 15.0
)

type Features struct {
	DoctorID            int
	QueueLength         int
	Hour                int
	DayOfWeek           int
	AvgConsultationTime float64
}

// FeaturesAt derives hour and day of week (Monday = 0) from t.
func FeaturesAt(doctorID, queueLength int, avg float64, t time.Time) Features {
	return Features{
		DoctorID:            doctorID,
		QueueLength:         queueLength,
		Hour:                t.Hour(),
		DayOfWeek:           DayOfWeek(t),
		AvgConsultationTime: avg,
	}
}

func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

type Strategy interface {
	Name() string
	Estimate(f Features) (float64, error)
}

type Result struct {
	Minutes  float64
	Strategy string
}

type Estimator struct {
	learned  Strategy
	fallback Fallback
	logger   zerolog.Logger
}

// New builds an estimator. learned may be nil, in which case every estimate uses the fallback.
func New(learned Strategy, defaultAvg float64, logger zerolog.Logger) *Estimator {
	return &Estimator{
		learned:  learned,
		fallback: Fallback{DefaultAvg: defaultAvg},
		logger:   logger,
	}
}

func (e *Estimator) Learned() bool {
	return e.learned != nil
}

func (e *Estimator) Estimate(f Features) Result {
	if f.AvgConsultationTime <= 0 {
		f.AvgConsultationTime = e.fallback.defaultAvg()
	}
	if e.learned != nil {
		minutes, err := e.learned.Estimate(f)
		if err == nil {
			return Result{Minutes: clamp(minutes), Strategy: e.learned.Name()}
		}
		e.logger.Debug().Err(err).Int("doctor_id", f.DoctorID).Msg("learned estimate unavailable, using fallback")
	}
	minutes, _ := e.fallback.Estimate(f)
	return Result{Minutes: clamp(minutes), Strategy: e.fallback.Name()}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}

// Fallback assumes one-at-a-time service at the doctor's average pace.
type Fallback struct {
	DefaultAvg float64
}

func (Fallback) Name() string {
	return StrategyFallback
}

func (f Fallback) Estimate(in Features) (float64, error) {
	avg := in.AvgConsultationTime
	if avg <= 0 {
		avg = f.defaultAvg()
	}
	q := in.QueueLength
	if q < 0 {
		q = 0
	}
	return float64(q) * avg, nil
}

func (f Fallback) defaultAvg() float64 {
	if f.DefaultAvg > 0 {
		return f.DefaultAvg
	}
	return DefaultConsultMinutes
}
