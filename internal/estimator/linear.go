package estimator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/patientflow/backend/internal/models"
	"github.com/patientflow/backend/internal/utils"
)

const (
	artifactVersion = 2
	ridgeLambda     = 1e-6
	doctorLambda    = 1e-3
	holdoutEvery    = 5
	peakStartHour   = 17
	peakEndHour     = 20
)

var (
	ErrInsufficientData = errors.New("not enough historical records to train")
	ErrSingularSystem   = errors.New("training system is singular")
)

// baseFeatures precede one offset column per doctor seen in training. Monday is the day-of-week
// reference level.
var baseFeatures = []string{
	"intercept",
	"queue_length",
	"avg_consultation_time",
	"queue_length_x_avg",
	"peak_hour",
	"hour_scaled",
	"dow_tue",
	"dow_wed",
	"dow_thu",
	"dow_fri",
	"dow_sat",
	"dow_sun",
}

func featureNames(doctors []int) []string {
	names := append([]string(nil), baseFeatures...)
	for _, id := range doctors {
		names = append(names, "doctor_"+strconv.Itoa(id))
	}
	return names
}

type Metrics struct {
	MAE          float64 `json:"mae"`
	RMSE         float64 `json:"rmse"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
}

// LinearModel is a ridge regression over a fixed expansion of the five estimator features.
// Doctors absent from training get no offset and fall back to the shared intercept.
// Inference is a dot product, so identical inputs always give identical outputs.
type LinearModel struct {
	doctors   []int
	column    map[int]int
	weights   []float64
	metrics   Metrics
	trainedAt time.Time
}

type artifact struct {
	Version   int       `json:"version"`
	Features  []string  `json:"features"`
	Doctors   []int     `json:"doctors"`
	Weights   []float64 `json:"weights"`
	Metrics   Metrics   `json:"metrics"`
	TrainedAt time.Time `json:"trained_at"`
}

func newLinearModel(doctors []int) *LinearModel {
	m := &LinearModel{doctors: doctors, column: make(map[int]int, len(doctors))}
	for i, id := range doctors {
		m.column[id] = len(baseFeatures) + i
	}
	return m
}

func (m *LinearModel) width() int {
	return len(baseFeatures) + len(m.doctors)
}

func (m *LinearModel) basis(f Features) []float64 {
	x := make([]float64, m.width())
	q := float64(f.QueueLength)
	x[0] = 1
	x[1] = q
	x[2] = f.AvgConsultationTime
	x[3] = q * f.AvgConsultationTime
	if f.Hour >= peakStartHour && f.Hour < peakEndHour {
		x[4] = 1
	}
	x[5] = float64(f.Hour) / 23
	if f.DayOfWeek >= 1 && f.DayOfWeek <= 6 {
		x[5+f.DayOfWeek] = 1
	}
	if col, ok := m.column[f.DoctorID]; ok {
		x[col] = 1
	}
	return x
}

func recordFeatures(r models.HistoricalRecord) Features {
	return Features{
		DoctorID:            r.DoctorID,
		QueueLength:         r.QueueLengthAtArrival,
		Hour:                r.Hour,
		DayOfWeek:           r.DayOfWeek,
		AvgConsultationTime: r.AvgConsultationTime,
	}
}

// Train fits the model. Every fifth record is held out for the reported metrics.
func Train(records []models.HistoricalRecord) (*LinearModel, error) {
	var train, test []models.HistoricalRecord
	for i, r := range records {
		if i%holdoutEvery == holdoutEvery-1 {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}

	seen := map[int]bool{}
	var doctors []int
	for _, r := range train {
		if !seen[r.DoctorID] {
			seen[r.DoctorID] = true
			doctors = append(doctors, r.DoctorID)
		}
	}
	sort.Ints(doctors)
	m := newLinearModel(doctors)

	k := m.width()
	if len(train) < 2*k {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(train), 2*k)
	}

	xtx := mat.NewSymDense(k, nil)
	xty := mat.NewVecDense(k, nil)
	for _, r := range train {
		x := m.basis(recordFeatures(r))
		for i := 0; i < k; i++ {
			if x[i] == 0 {
				continue
			}
			xty.SetVec(i, xty.AtVec(i)+x[i]*r.ActualWaitMinutes)
			for j := i; j < k; j++ {
				xtx.SetSym(i, j, xtx.At(i, j)+x[i]*x[j])
			}
		}
	}
	n := float64(len(train))
	for i := 1; i < k; i++ {
		lambda := ridgeLambda
		if i >= len(baseFeatures) {
			lambda = doctorLambda
		}
		xtx.SetSym(i, i, xtx.At(i, i)+lambda*n)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return nil, ErrSingularSystem
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, xty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}
	m.weights = make([]float64, k)
	for i := range m.weights {
		m.weights[i] = w.AtVec(i)
	}
	m.trainedAt = time.Now().UTC()

	eval := test
	if len(eval) == 0 {
		eval = train
	}
	predicted := make([]float64, 0, len(eval))
	actual := make([]float64, 0, len(eval))
	for _, r := range eval {
		predicted = append(predicted, math.Max(0, m.dot(recordFeatures(r))))
		actual = append(actual, r.ActualWaitMinutes)
	}
	mae, rmse := utils.ErrorStats(predicted, actual)
	m.metrics = Metrics{MAE: mae, RMSE: rmse, TrainSamples: len(train), TestSamples: len(test)}
	return m, nil
}

func (m *LinearModel) Name() string {
	return StrategyLearned
}

func (m *LinearModel) Estimate(f Features) (float64, error) {
	if m == nil || len(m.weights) != m.width() {
		return 0, ErrModelUnavailable
	}
	if f.QueueLength < 0 || f.Hour < 0 || f.Hour > 23 || f.DayOfWeek < 0 || f.DayOfWeek > 6 || f.AvgConsultationTime <= 0 {
		return 0, fmt.Errorf("%w: features out of range", ErrModelUnavailable)
	}
	v := m.dot(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite prediction", ErrModelUnavailable)
	}
	return math.Max(0, v), nil
}

func (m *LinearModel) dot(f Features) float64 {
	x := m.basis(f)
	sum := 0.0
	for i, w := range m.weights {
		sum += w * x[i]
	}
	return sum
}

func (m *LinearModel) Metrics() Metrics {
	return m.metrics
}

// Weights maps feature names to fitted coefficients.
func (m *LinearModel) Weights() map[string]float64 {
	names := featureNames(m.doctors)
	out := make(map[string]float64, len(m.weights))
	for i, w := range m.weights {
		out[names[i]] = w
	}
	return out
}

func (m *LinearModel) Save(path string) error {
	b, err := json.MarshalIndent(artifact{
		Version:   artifactVersion,
		Features:  featureNames(m.doctors),
		Doctors:   m.doctors,
		Weights:   m.weights,
		Metrics:   m.metrics,
		TrainedAt: m.trainedAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadModel(path string) (*LinearModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("model artifact version %d not supported", a.Version)
	}
	for i := 1; i < len(a.Doctors); i++ {
		if a.Doctors[i] <= a.Doctors[i-1] {
			return nil, fmt.Errorf("model artifact doctors must be strictly increasing")
		}
	}
	names := featureNames(a.Doctors)
	if len(a.Features) != len(names) || len(a.Weights) != len(names) {
		return nil, fmt.Errorf("model artifact has %d weights, want %d", len(a.Weights), len(names))
	}
	for i, name := range names {
		if a.Features[i] != name {
			return nil, fmt.Errorf("model artifact feature %d is %q, want %q", i, a.Features[i], name)
		}
	}
	for _, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model artifact contains non-finite weight")
		}
	}
	m := newLinearModel(a.Doctors)
	m.weights, m.metrics, m.trainedAt = a.Weights, a.Metrics, a.TrainedAt
	return m, nil
}
