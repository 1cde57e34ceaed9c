package appointment

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports an unknown appointment ID. Terminal for the
	// request; the caller corrects and reissues.
	ErrNotFound = errors.New("appointment not found")

	// ErrSlotConflict reports that a non-terminal appointment already
	// holds the (doctor, date, start) slot.
	ErrSlotConflict = errors.New("appointment slot is already booked")

	// ErrDuplicateID reports an insert reusing an existing appointment
	// ID. IDs are generated, so this signals a caller bug, not a race.
	ErrDuplicateID = errors.New("appointment ID already exists")

	// ErrVersionConflict reports a lost optimistic-concurrency race: a
	// concurrent writer committed first. Safe to retry after a fresh
	// read.
	ErrVersionConflict = errors.New("appointment was modified concurrently")
)

// Store is the persistence contract for appointment documents. Every
// query below is backed by a named compound index; no operation may
// require a scan over the full collection.
type Store interface {
	// Insert persists a new document. Fails with ErrSlotConflict when a
	// non-terminal appointment holds the same slot and ErrDuplicateID
	// when the appointment ID is already taken.
	Insert(ctx context.Context, a *Appointment) error

	// Get looks a document up by its external appointment ID.
	Get(ctx context.Context, appointmentID string) (*Appointment, error)

	// Update replaces the document using compare-and-swap on Version:
	// the write matches the version the caller read and commits with
	// Version+1. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, a *Appointment) error

	// DoctorDay lists a doctor's schedule for one date, optionally
	// narrowed to a status. Backed by (doctor_id, date, status).
	DoctorDay(ctx context.Context, doctorID, date string, status Status) ([]*Appointment, error)

	// PatientHistory lists a patient's appointments, most recent date
	// first. Backed by (patient_id, date desc).
	PatientHistory(ctx context.Context, patientID string, limit int) ([]*Appointment, error)

	// Queue lists appointments in one status ordered by date. Backed by
	// (status, date).
	Queue(ctx context.Context, status Status, limit int) ([]*Appointment, error)

	// Urgent lists appointments at an urgency level for one date,
	// highest priority score first. Backed by (urgency_level, date).
	Urgent(ctx context.Context, urgency UrgencyLevel, date string) ([]*Appointment, error)

	// BySpecialty lists appointments routed to a specialty, optionally
	// narrowed to a status. Backed by (specialty, status).
	BySpecialty(ctx context.Context, specialty string, status Status) ([]*Appointment, error)

	// ByDistrict lists appointments for regional reporting. Backed by
	// (patient_info.location.district, date).
	ByDistrict(ctx context.Context, district, date string) ([]*Appointment, error)
}
