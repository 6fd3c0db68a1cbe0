package queue

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDoctor        = errors.New("invalid doctor")
	ErrNoActiveConsultation = errors.New("no active consultation")
	ErrUnknownPatient       = errors.New("unknown patient")
	ErrNoDoctors            = errors.New("no doctors registered")
)

type InvalidDoctorError struct {
	DoctorID int
}

func (e *InvalidDoctorError) Error() string {
	return fmt.Sprintf("doctor %d does not exist", e.DoctorID)
}

func (e *InvalidDoctorError) Is(target error) bool {
	return target == ErrInvalidDoctor
}

type NoActiveConsultationError struct {
	DoctorID int
}

func (e *NoActiveConsultationError) Error() string {
	return fmt.Sprintf("doctor %d has no consultation in progress", e.DoctorID)
}

func (e *NoActiveConsultationError) Is(target error) bool {
	return target == ErrNoActiveConsultation
}

type UnknownPatientError struct {
	PatientID string
}

func (e *UnknownPatientError) Error() string {
	return fmt.Sprintf("patient %q not found", e.PatientID)
}

func (e *UnknownPatientError) Is(target error) bool {
	return target == ErrUnknownPatient
}
