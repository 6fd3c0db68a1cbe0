package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/patientflow/backend/internal/models"
)

type Config struct {
	Env                   string        `mapstructure:"ENV"`
	Port                  string        `mapstructure:"PORT"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	CORSAllowed           string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout        time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	HistoryCSV            string        `mapstructure:"HISTORY_CSV"`
	ModelPath             string        `mapstructure:"MODEL_PATH"`
	DoctorsFile           string        `mapstructure:"DOCTORS_FILE"`
	DefaultConsultMinutes float64       `mapstructure:"DEFAULT_CONSULT_MINUTES"`
	EarlyArrivalThreshold time.Duration `mapstructure:"EARLY_ARRIVAL_THRESHOLD"`
	PeakThresholdMinutes  float64       `mapstructure:"PEAK_THRESHOLD_MINUTES"`
	PeakVolumeRatio       float64       `mapstructure:"PEAK_VOLUME_RATIO"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("HISTORY_CSV", "")
	v.SetDefault("MODEL_PATH", "")
	v.SetDefault("DOCTORS_FILE", "")
	v.SetDefault("DEFAULT_CONSULT_MINUTES", 15)
	v.SetDefault("EARLY_ARRIVAL_THRESHOLD", "20m")
	v.SetDefault("PEAK_THRESHOLD_MINUTES", 40)
	v.SetDefault("PEAK_VOLUME_RATIO", 0.5)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DefaultConsultMinutes <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_CONSULT_MINUTES must be positive, got %v", cfg.DefaultConsultMinutes)
	}
	return cfg, nil
}

var ErrEmptyRoster = errors.New("doctor roster is empty")

type roster struct {
	Doctors []models.DoctorProfile `mapstructure:"doctors" validate:"required,min=1,dive"`
}

// LoadDoctors reads the roster from path (any format viper understands). An empty path yields
// the built-in roster.
func LoadDoctors(path string) ([]models.DoctorProfile, error) {
	if path == "" {
		return DefaultDoctors(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	var r roster
	if err := v.Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", path, err)
	}
	if len(r.Doctors) == 0 {
		return nil, ErrEmptyRoster
	}
	if err := validator.New().Struct(r); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r.Doctors, nil
}

func DefaultDoctors() []models.DoctorProfile {
	return []models.DoctorProfile{
		{ID: 1, Name: "Dr. Sharma", Specialty: "Cardiology", AvgConsultationTime: 12.5},
		{ID: 2, Name: "Dr. Patel", Specialty: "Orthopedics", AvgConsultationTime: 18},
		{ID: 3, Name: "Dr. Kumar", Specialty: "Dermatology", AvgConsultationTime: 10},
		{ID: 4, Name: "Dr. Singh", Specialty: "Pediatrics", AvgConsultationTime: 15},
		{ID: 5, Name: "Dr. Reddy", Specialty: "General Medicine", AvgConsultationTime: 12},
		{ID: 6, Name: "Dr. Rao", Specialty: "Cardiology", AvgConsultationTime: 14},
		{ID: 7, Name: "Dr. Mehta", Specialty: "Orthopedics", AvgConsultationTime: 22},
		{ID: 8, Name: "Dr. Joshi", Specialty: "Dermatology", AvgConsultationTime: 8},
		{ID: 9, Name: "Dr. Gupta", Specialty: "Pediatrics", AvgConsultationTime: 16},
		{ID: 10, Name: "Dr. Iyer", Specialty: "General Medicine", AvgConsultationTime: 11},
		{ID: 11, Name: "Dr. Khan", Specialty: "Cardiology", AvgConsultationTime: 13},
		{ID: 12, Name: "Dr. Nair", Specialty: "Orthopedics", AvgConsultationTime: 20},
		{ID: 13, Name: "Dr. Desai", Specialty: "Dermatology", AvgConsultationTime: 9},
		{ID: 14, Name: "Dr. Verma", Specialty: "Pediatrics", AvgConsultationTime: 14.5},
		{ID: 15, Name: "Dr. Pillai", Specialty: "General Medicine", AvgConsultationTime: 12.5},
	}
}
