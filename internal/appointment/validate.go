package appointment

import (
	"fmt"
	"strings"
	"time"
)

// FieldError reports a single violated field. Validation never stops at
// the first violation: callers receive one error per bad field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates field-level violations for one request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether the given field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Validate checks required fields, enum membership and numeric ranges.
// It is pure: no defaults are applied and nothing is mutated. Returns
// nil when the document is well formed.
func (a *Appointment) Validate() *ValidationError {
	var fields []FieldError
	add := func(field, message string) {
		fields = append(fields, FieldError{Field: field, Message: message})
	}

	if a.AppointmentID == "" {
		add("appointment_id", "is required")
	}
	if a.PatientID == "" {
		add("patient_id", "is required")
	}
	if a.DoctorID == "" {
		add("doctor_id", "is required")
	}

	if a.AppointmentDate == "" {
		add("appointment_date", "is required")
	} else if _, err := time.Parse(DateLayout, a.AppointmentDate); err != nil {
		add("appointment_date", "must be formatted as "+DateLayout)
	}

	validateSlot(a.AppointmentTime, add)

	if !a.ConsultationType.Valid() {
		add("consultation_type", fmt.Sprintf("unknown value %q", a.ConsultationType))
	}
	if a.ConsultationMode == "" {
		add("consultation_mode", "is required")
	} else if !a.ConsultationMode.Valid() {
		add("consultation_mode", fmt.Sprintf("unknown value %q", a.ConsultationMode))
	}
	if a.Specialty == "" {
		add("specialty", "is required")
	}
	if !a.Status.Valid() {
		add("status", fmt.Sprintf("unknown value %q", a.Status))
	}

	if a.ConsultationReason.ChiefComplaint == "" {
		add("consultation_reason.chief_complaint", "is required")
	}
	if !a.ConsultationReason.Severity.Valid() {
		add("consultation_reason.severity", fmt.Sprintf("unknown value %q", a.ConsultationReason.Severity))
	}
	if !a.ConsultationReason.UrgencyLevel.Valid() {
		add("consultation_reason.urgency_level", fmt.Sprintf("unknown value %q", a.ConsultationReason.UrgencyLevel))
	}

	if a.Payment.Amount < 0 {
		add("payment.amount", "must be non-negative")
	}
	if !a.Payment.Status.Valid() {
		add("payment.status", fmt.Sprintf("unknown value %q", a.Payment.Status))
	}

	if a.AITriage != nil {
		if a.AITriage.TriageScore < 0 || a.AITriage.TriageScore > 10 {
			add("ai_triage.triage_score", "must be within [0,10]")
		}
		if a.AITriage.AIConfidence < 0 || a.AITriage.AIConfidence > 1 {
			add("ai_triage.ai_confidence", "must be within [0,1]")
		}
		if !a.AITriage.PriorityLevel.Valid() {
			add("ai_triage.priority_level", fmt.Sprintf("unknown value %q", a.AITriage.PriorityLevel))
		}
	}

	if a.Feedback != nil {
		validateRating("feedback.patient_rating", a.Feedback.PatientRating, add)
		validateRating("feedback.doctor_rating", a.Feedback.DoctorRating, add)
		validateRating("feedback.technical_rating", a.Feedback.TechnicalRating, add)
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func validateSlot(slot TimeSlot, add func(field, message string)) {
	if slot.Start == "" {
		add("appointment_time.start", "is required")
		return
	}
	if _, err := time.Parse(ClockLayout, slot.Start); err != nil {
		add("appointment_time.start", "must be formatted as "+ClockLayout)
		return
	}
	if slot.End == "" {
		add("appointment_time.end", "is required")
		return
	}
	if _, err := time.Parse(ClockLayout, slot.End); err != nil {
		add("appointment_time.end", "must be formatted as "+ClockLayout)
		return
	}
	if slot.Duration <= 0 {
		add("appointment_time.duration", "must be positive")
		return
	}
	derived, err := slot.DeriveEnd()
	if err != nil {
		add("appointment_time.start", err.Error())
		return
	}
	if derived != slot.End {
		add("appointment_time.end", fmt.Sprintf("must equal start plus duration (%s)", derived))
	}
}

func validateRating(field string, rating int, add func(field, message string)) {
	if rating != 0 && (rating < 1 || rating > 5) {
		add(field, "must be within [1,5]")
	}
}
