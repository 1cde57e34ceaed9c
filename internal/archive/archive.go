package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/swasthyasetu/appointment-service/internal/appointment"
)

// ErrNotArchivable rejects archival of a document that has not reached
// a terminal status.
var ErrNotArchivable = errors.New("only terminal appointments are archived")

// Service writes a flattened summary of each terminal appointment to
// Postgres. Appointments are archived, never deleted: the primary store
// keeps the full document and this table serves analytics and audit
// retention queries without touching the operational collection.
type Service interface {
	Archive(ctx context.Context, a *appointment.Appointment) error
	Initialize(ctx context.Context) error
}

type service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) Service {
	return &service{db: db}
}

// Initialize creates the archive table when it does not exist yet.
func (s *service) Initialize(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS appointment_archive (
		appointment_id VARCHAR(64) PRIMARY KEY,
		patient_id VARCHAR(64) NOT NULL,
		doctor_id VARCHAR(64) NOT NULL,
		appointment_date DATE NOT NULL,
		slot_start VARCHAR(5) NOT NULL,
		specialty VARCHAR(128) NOT NULL,
		district VARCHAR(128),
		final_status VARCHAR(32) NOT NULL,
		consultation_mode VARCHAR(16) NOT NULL,
		urgency_level VARCHAR(16) NOT NULL,
		symptoms TEXT[] NOT NULL DEFAULT '{}',
		prescription TEXT[] NOT NULL DEFAULT '{}',
		priority_score DOUBLE PRECISION NOT NULL,
		is_emergency BOOLEAN NOT NULL,
		payment_amount NUMERIC(12,2) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		wait_time_minutes INTEGER,
		actual_duration_minutes INTEGER,
		rescheduled_from VARCHAR(64),
		rescheduled_to VARCHAR(64),
		cancellation_reason TEXT,
		booked_at TIMESTAMP WITH TIME ZONE NOT NULL,
		archived_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_archive_district_date
		ON appointment_archive (district, appointment_date);
	CREATE INDEX IF NOT EXISTS idx_archive_doctor_date
		ON appointment_archive (doctor_id, appointment_date);
	`

	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Archive upserts the summary row. Re-archiving the same appointment is
// idempotent so transition retries never duplicate rows.
func (s *service) Archive(ctx context.Context, a *appointment.Appointment) error {
	if !a.Status.Terminal() {
		return ErrNotArchivable
	}

	var prescription []string
	if a.Consultation != nil {
		prescription = a.Consultation.Prescription
	}
	var waitTime, actualDuration *int
	if a.Session != nil {
		d := a.Session.ActualDuration
		actualDuration = &d
	}
	if a.Analytics.WaitTime > 0 {
		w := a.Analytics.WaitTime
		waitTime = &w
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointment_archive (
			appointment_id, patient_id, doctor_id, appointment_date, slot_start,
			specialty, district, final_status, consultation_mode, urgency_level,
			symptoms, prescription, priority_score, is_emergency,
			payment_amount, payment_status, wait_time_minutes, actual_duration_minutes,
			rescheduled_from, rescheduled_to, cancellation_reason, booked_at, archived_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23
		)
		ON CONFLICT (appointment_id) DO UPDATE SET
			final_status = EXCLUDED.final_status,
			rescheduled_to = EXCLUDED.rescheduled_to,
			archived_at = EXCLUDED.archived_at
	`,
		a.AppointmentID, a.PatientID, a.DoctorID, a.AppointmentDate, a.AppointmentTime.Start,
		a.Specialty, a.PatientInfo.Location.District, string(a.Status), string(a.ConsultationMode),
		string(a.ConsultationReason.UrgencyLevel),
		pq.Array(a.ConsultationReason.Symptoms), pq.Array(prescription),
		a.PriorityScore, a.IsEmergency,
		a.Payment.Amount, string(a.Payment.Status), waitTime, actualDuration,
		a.Scheduling.RescheduledFrom, a.Scheduling.RescheduledTo, a.Scheduling.CancellationReason,
		a.Scheduling.BookedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive appointment %s: %w", a.AppointmentID, err)
	}
	return nil
}
