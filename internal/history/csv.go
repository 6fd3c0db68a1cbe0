package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/patientflow/backend/internal/estimator"
	"github.com/patientflow/backend/internal/models"
)

var ErrNoRecords = errors.New("historical dataset has no usable rows")

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

// Result holds the parsed rows together with one message per rejected row.
type Result struct {
	Records []models.HistoricalRecord
	Errors  []string
}

// Parse reads a historical dataset. Two layouts are accepted: the aggregated one
// (hour, day_of_week, queue_length_at_arrival, actual_wait_minutes) and the raw appointment log
// (scheduled_time, actual_time, queue_length), from which hour, day of week and wait are derived.
// Bad rows are skipped and reported.
func Parse(r io.Reader, validate *validator.Validate) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	index := headerIndex(headers)
	_, raw := index["scheduled_time"]

	var res Result
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}

		var row models.HistoricalRecord
		if raw {
			row, err = parseLogRow(rec, index)
		} else {
			row, err = parseAggregatedRow(rec, index)
		}
		if err == nil {
			err = validate.Struct(row)
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		res.Records = append(res.Records, row)
	}
	return res, nil
}

func parseAggregatedRow(rec []string, index map[string]int) (models.HistoricalRecord, error) {
	var (
		row  models.HistoricalRecord
		errs []error
	)
	row.DoctorID, errs = atoi(rec, index, errs, "doctor_id", "doctor id")
	row.Hour, errs = atoi(rec, index, errs, "hour")
	row.DayOfWeek, errs = atoi(rec, index, errs, "day_of_week", "day of week", "dow")
	row.QueueLengthAtArrival, errs = atoi(rec, index, errs, "queue_length_at_arrival", "queue_length", "queue length")
	row.AvgConsultationTime, errs = atof(rec, index, errs, "avg_consultation_time", "avg consultation time")
	row.ActualWaitMinutes, errs = atof(rec, index, errs, "actual_wait_minutes", "wait_minutes", "delay")
	return row, errors.Join(errs...)
}

func parseLogRow(rec []string, index map[string]int) (models.HistoricalRecord, error) {
	var (
		row  models.HistoricalRecord
		errs []error
	)
	row.DoctorID, errs = atoi(rec, index, errs, "doctor_id", "doctor id")
	row.QueueLengthAtArrival, errs = atoi(rec, index, errs, "queue_length", "queue_length_at_arrival")
	row.AvgConsultationTime, errs = atof(rec, index, errs, "avg_consultation_time")

	scheduled, err := parseTime(getFieldAny(rec, index, "scheduled_time"))
	if err != nil {
		errs = append(errs, fmt.Errorf("scheduled_time: %w", err))
	}
	actual, err := parseTime(getFieldAny(rec, index, "actual_time"))
	if err != nil {
		errs = append(errs, fmt.Errorf("actual_time: %w", err))
	}
	if len(errs) > 0 {
		return row, errors.Join(errs...)
	}

	row.Hour = scheduled.Hour()
	row.DayOfWeek = estimator.DayOfWeek(scheduled)
	// Seen ahead of schedule counts as no wait.
	row.ActualWaitMinutes = math.Max(0, actual.Sub(scheduled).Minutes())
	return row, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", v)
}

func atoi(rec []string, index map[string]int, errs []error, names ...string) (int, []error) {
	v := getFieldAny(rec, index, names...)
	n, err := strconv.Atoi(v)
	if err != nil {
		// pandas writes integer columns with NaN as floats.
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != math.Trunc(f) || f >= float64(math.MaxInt) || f < float64(math.MinInt) {
			return 0, append(errs, fmt.Errorf("%s: invalid integer %q", names[0], v))
		}
		n = int(f)
	}
	return n, errs
}

func atof(rec []string, index map[string]int, errs []error, names ...string) (float64, []error) {
	v := getFieldAny(rec, index, names...)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, append(errs, fmt.Errorf("%s: invalid number %q", names[0], v))
	}
	return f, errs
}

func headerIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func getField(rec []string, idx map[string]int, name string) string {
	pos, ok := idx[name]
	if !ok || pos >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[pos])
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, normalizeHeader(name)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

// FileSource loads the dataset from a CSV file on disk.
type FileSource struct {
	Path      string
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{Path: path, Validator: validator.New(), Logger: logger}
}

func (s *FileSource) Name() string {
	return "csv:" + s.Path
}

func (s *FileSource) LoadHistory(ctx context.Context) ([]models.HistoricalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v := s.Validator
	if v == nil {
		v = validator.New()
	}
	res, err := Parse(f, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	if len(res.Errors) > 0 {
		s.Logger.Warn().
			Str("path", s.Path).
			Int("rejected", len(res.Errors)).
			Strs("sample", head(res.Errors, 5)).
			Msg("historical rows rejected")
	}
	if len(res.Records) == 0 {
		return nil, ErrNoRecords
	}
	return res.Records, nil
}

func head(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
