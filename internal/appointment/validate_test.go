package appointment

import (
	"testing"
	"time"
)

func wellFormed() *Appointment {
	return &Appointment{
		AppointmentID:   "APT-1",
		PatientID:       "patient-1",
		DoctorID:        "doctor-1",
		AppointmentDate: "2025-09-10",
		AppointmentTime: TimeSlot{Start: "14:30", End: "15:00", Duration: 30},
		ConsultationType: ConsultationScheduled,
		ConsultationMode: ModeVideo,
		Specialty:        "cardiology",
		Status:           StatusScheduled,
		ConsultationReason: ConsultationReason{
			ChiefComplaint: "chest pain",
			Severity:       SeverityModerate,
			UrgencyLevel:   UrgencyHigh,
		},
		Payment: Payment{Amount: 500, Currency: "INR", Status: PaymentPending},
		Scheduling: Scheduling{
			BookedAt: time.Date(2025, 9, 9, 9, 0, 0, 0, time.UTC),
			BookedBy: "patient-1",
			TimeZone: DefaultTimeZone,
		},
	}
}

func TestValidateWellFormed(t *testing.T) {
	if err := wellFormed().Validate(); err != nil {
		t.Fatalf("well-formed document rejected: %v", err)
	}
}

func TestValidateMissingChiefComplaint(t *testing.T) {
	a := wellFormed()
	a.ConsultationReason.ChiefComplaint = ""

	err := a.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !err.Has("consultation_reason.chief_complaint") {
		t.Errorf("expected field error on chief complaint, got %v", err.Fields)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	a := wellFormed()
	a.PatientID = ""
	a.DoctorID = ""
	a.Specialty = ""
	a.Payment.Amount = -1

	err := a.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"patient_id", "doctor_id", "specialty", "payment.amount"} {
		if !err.Has(field) {
			t.Errorf("missing field error for %s in %v", field, err.Fields)
		}
	}
	if len(err.Fields) != 4 {
		t.Errorf("got %d field errors, want 4: %v", len(err.Fields), err.Fields)
	}
}

func TestValidateDateFormat(t *testing.T) {
	a := wellFormed()
	a.AppointmentDate = "10-09-2025"
	if err := a.Validate(); err == nil || !err.Has("appointment_date") {
		t.Errorf("expected field error on appointment_date, got %v", err)
	}
}

func TestValidateSlotEndMismatch(t *testing.T) {
	a := wellFormed()
	a.AppointmentTime = TimeSlot{Start: "14:30", End: "15:30", Duration: 30}
	if err := a.Validate(); err == nil || !err.Has("appointment_time.end") {
		t.Errorf("expected field error on appointment_time.end, got %v", err)
	}
}

func TestValidateSlotDuration(t *testing.T) {
	a := wellFormed()
	a.AppointmentTime = TimeSlot{Start: "14:30", End: "15:00", Duration: 0}
	if err := a.Validate(); err == nil || !err.Has("appointment_time.duration") {
		t.Errorf("expected field error on appointment_time.duration, got %v", err)
	}
}

func TestValidateTriageRanges(t *testing.T) {
	a := wellFormed()
	a.AITriage = &AITriage{TriageScore: 11, PriorityLevel: TriageHigh, AIConfidence: 1.2}

	err := a.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !err.Has("ai_triage.triage_score") || !err.Has("ai_triage.ai_confidence") {
		t.Errorf("expected triage range errors, got %v", err.Fields)
	}
}

func TestValidateFeedbackRatings(t *testing.T) {
	a := wellFormed()
	a.Feedback = &Feedback{PatientRating: 6, DoctorRating: 3}
	if err := a.Validate(); err == nil || !err.Has("feedback.patient_rating") {
		t.Errorf("expected field error on feedback.patient_rating, got %v", err)
	}
}

func TestDeriveEnd(t *testing.T) {
	cases := []struct {
		start    string
		duration int
		want     string
	}{
		{"14:30", 30, "15:00"},
		{"09:45", 15, "10:00"},
		{"23:45", 30, "00:15"},
	}
	for _, tc := range cases {
		got, err := TimeSlot{Start: tc.start, Duration: tc.duration}.DeriveEnd()
		if err != nil {
			t.Fatalf("DeriveEnd(%s, %d): %v", tc.start, tc.duration, err)
		}
		if got != tc.want {
			t.Errorf("DeriveEnd(%s, %d) = %s, want %s", tc.start, tc.duration, got, tc.want)
		}
	}

	if _, err := (TimeSlot{Start: "2pm", Duration: 30}).DeriveEnd(); err == nil {
		t.Error("expected error for malformed start")
	}
}
