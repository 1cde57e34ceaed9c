package appointment

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment document.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions. A
// rescheduled appointment is terminal for its own document; the
// successor document continues the chain in scheduled state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// NonTerminalStatuses are the statuses that still hold their booked
// slot. Used by the slot-exclusivity check on the creation path.
var NonTerminalStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

type ConsultationType string

const (
	ConsultationScheduled     ConsultationType = "scheduled"
	ConsultationEmergency     ConsultationType = "emergency"
	ConsultationFollowUp      ConsultationType = "follow_up"
	ConsultationSecondOpinion ConsultationType = "second_opinion"
)

func (t ConsultationType) Valid() bool {
	switch t {
	case ConsultationScheduled, ConsultationEmergency, ConsultationFollowUp, ConsultationSecondOpinion:
		return true
	}
	return false
}

type ConsultationMode string

const (
	ModeVideo ConsultationMode = "video"
	ModeVoice ConsultationMode = "voice"
	ModeChat  ConsultationMode = "chat"
)

func (m ConsultationMode) Valid() bool {
	switch m {
	case ModeVideo, ModeVoice, ModeChat:
		return true
	}
	return false
}

type Severity string

const (
	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
	SeverityCritical Severity = "Critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere, SeverityCritical:
		return true
	}
	return false
}

type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "Low"
	UrgencyMedium    UrgencyLevel = "Medium"
	UrgencyHigh      UrgencyLevel = "High"
	UrgencyEmergency UrgencyLevel = "Emergency"
)

func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentWaived   PaymentStatus = "waived"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentWaived:
		return true
	}
	return false
}

type TriagePriority string

const (
	TriageLow      TriagePriority = "Low"
	TriageMedium   TriagePriority = "Medium"
	TriageHigh     TriagePriority = "High"
	TriageCritical TriagePriority = "Critical"
)

func (t TriagePriority) Valid() bool {
	switch t {
	case TriageLow, TriageMedium, TriageHigh, TriageCritical:
		return true
	}
	return false
}

const (
	// DateLayout is the wire format of appointment_date.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format of slot start/end times.
	ClockLayout = "15:04"

	// DefaultDurationMinutes applies when a booking omits the slot duration.
	DefaultDurationMinutes = 30

	DefaultCurrency = "INR"
	DefaultTimeZone = "Asia/Kolkata"
)

// TimeSlot is the booked slot within appointment_date. End must equal
// Start plus Duration minutes.
type TimeSlot struct {
	Start    string `json:"start" bson:"start"` // "14:30"
	End      string `json:"end" bson:"end"`
	Duration int    `json:"duration" bson:"duration"` // minutes
}

// DeriveEnd returns Start shifted by Duration minutes, in clock format.
func (t TimeSlot) DeriveEnd() (string, error) {
	start, err := time.Parse(ClockLayout, t.Start)
	if err != nil {
		return "", fmt.Errorf("invalid slot start %q: %w", t.Start, err)
	}
	return start.Add(time.Duration(t.Duration) * time.Minute).Format(ClockLayout), nil
}

type Location struct {
	District string `json:"district" bson:"district"`
	State    string `json:"state" bson:"state"`
	Pincode  string `json:"pincode" bson:"pincode"`
}

// PatientInfo is a denormalized snapshot of the patient taken at
// booking time. It never tracks the live Patient record: booking-time
// facts must not retroactively change.
type PatientInfo struct {
	Name     string   `json:"name" bson:"name"`
	Age      int      `json:"age" bson:"age"`
	Gender   string   `json:"gender" bson:"gender"`
	Phone    string   `json:"phone" bson:"phone"` // Encrypted at rest
	Location Location `json:"location" bson:"location"`
}

type ConsultationReason struct {
	ChiefComplaint string       `json:"chief_complaint" bson:"chief_complaint"`
	Symptoms       []string     `json:"symptoms" bson:"symptoms"`
	Severity       Severity     `json:"severity" bson:"severity"`
	UrgencyLevel   UrgencyLevel `json:"urgency_level" bson:"urgency_level"`
}

// AITriage is attached once by the external triage collaborator. This
// service stores it and recomputes the priority score; it never
// computes triage itself.
type AITriage struct {
	TriageScore          float64        `json:"triage_score" bson:"triage_score"` // [0,10]
	PriorityLevel        TriagePriority `json:"priority_level" bson:"priority_level"`
	AIConfidence         float64        `json:"ai_confidence" bson:"ai_confidence"` // [0,1]
	RecommendedSpecialty string         `json:"recommended_specialty,omitempty" bson:"recommended_specialty,omitempty"`
	AssessedAt           time.Time      `json:"assessed_at" bson:"assessed_at"`
}

type Payment struct {
	Amount        float64       `json:"amount" bson:"amount"`
	Currency      string        `json:"currency" bson:"currency"`
	Status        PaymentStatus `json:"status" bson:"status"`
	PaymentMethod string        `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
}

// Session holds the live-consultation record, populated once the
// appointment enters in_progress. Downstream consumers assume
// EndTime >= StartTime.
type Session struct {
	SessionID         string     `json:"session_id" bson:"session_id"`
	StartTime         *time.Time `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty" bson:"end_time,omitempty"`
	ActualDuration    int        `json:"actual_duration" bson:"actual_duration"` // minutes, floored
	ConnectionQuality string     `json:"connection_quality,omitempty" bson:"connection_quality,omitempty"`
	TechnicalIssues   []string   `json:"technical_issues,omitempty" bson:"technical_issues,omitempty"`
}

// Consultation is the clinical outcome, populated once completed.
type Consultation struct {
	Diagnosis    string   `json:"diagnosis" bson:"diagnosis"`
	Prescription []string `json:"prescription,omitempty" bson:"prescription,omitempty"`
	LabTests     []string `json:"lab_tests,omitempty" bson:"lab_tests,omitempty"`
	Referrals    []string `json:"referrals,omitempty" bson:"referrals,omitempty"`
	FollowUp     string   `json:"follow_up,omitempty" bson:"follow_up,omitempty"`
	DoctorNotes  string   `json:"doctor_notes,omitempty" bson:"doctor_notes,omitempty"`
}

// Feedback is collected strictly after completion. Ratings are 1-5.
type Feedback struct {
	PatientRating   int `json:"patient_rating" bson:"patient_rating"`
	DoctorRating    int `json:"doctor_rating" bson:"doctor_rating"`
	TechnicalRating int `json:"technical_rating" bson:"technical_rating"`
}

// Scheduling is booking and lifecycle bookkeeping. RescheduledFrom and
// RescheduledTo carry appointment IDs forming the reschedule chain:
// each reschedule creates a new document, never mutates dates on the
// original.
type Scheduling struct {
	BookedAt           time.Time  `json:"booked_at" bson:"booked_at"`
	BookedBy           string     `json:"booked_by" bson:"booked_by"`
	TimeZone           string     `json:"time_zone" bson:"time_zone"`
	RescheduledFrom    string     `json:"rescheduled_from,omitempty" bson:"rescheduled_from,omitempty"`
	RescheduledTo      string     `json:"rescheduled_to,omitempty" bson:"rescheduled_to,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancellationTime   *time.Time `json:"cancellation_time,omitempty" bson:"cancellation_time,omitempty"`
	LastModified       time.Time  `json:"last_modified" bson:"last_modified"`
}

// Analytics fields are derived by the transition engine, never set by
// callers.
type Analytics struct {
	WaitTime           int  `json:"wait_time" bson:"wait_time"`         // minutes, booked_at -> session start
	ResponseTime       int  `json:"response_time" bson:"response_time"` // minutes, booked_at -> confirmation
	FollowUpCompliance bool `json:"follow_up_compliance" bson:"follow_up_compliance"`
}

// Appointment is the aggregate root owned by this service.
type Appointment struct {
	ID            string `json:"id" bson:"_id"`
	AppointmentID string `json:"appointment_id" bson:"appointment_id"`

	PatientID string `json:"patient_id" bson:"patient_id"`
	DoctorID  string `json:"doctor_id" bson:"doctor_id"`

	AppointmentDate string   `json:"appointment_date" bson:"appointment_date"` // "2025-09-10"
	AppointmentTime TimeSlot `json:"appointment_time" bson:"appointment_time"`

	ConsultationType ConsultationType `json:"consultation_type" bson:"consultation_type"`
	ConsultationMode ConsultationMode `json:"consultation_mode" bson:"consultation_mode"`
	Specialty        string           `json:"specialty" bson:"specialty"`

	Status Status `json:"status" bson:"status"`

	PatientInfo        PatientInfo        `json:"patient_info" bson:"patient_info"`
	ConsultationReason ConsultationReason `json:"consultation_reason" bson:"consultation_reason"`

	AITriage     *AITriage     `json:"ai_triage,omitempty" bson:"ai_triage,omitempty"`
	Payment      Payment       `json:"payment" bson:"payment"`
	Session      *Session      `json:"session,omitempty" bson:"session,omitempty"`
	Consultation *Consultation `json:"consultation,omitempty" bson:"consultation,omitempty"`
	Feedback     *Feedback     `json:"feedback,omitempty" bson:"feedback,omitempty"`

	Scheduling Scheduling `json:"scheduling" bson:"scheduling"`
	Analytics  Analytics  `json:"analytics" bson:"analytics"`

	IsEmergency   bool    `json:"is_emergency" bson:"is_emergency"`
	PriorityScore float64 `json:"priority_score" bson:"priority_score"`

	// Version is the optimistic concurrency token. Every successful
	// write increments it; a stale write loses and must re-read.
	Version int64 `json:"version" bson:"version"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Touch refreshes the modification timestamps. Every mutation path
// must call this before the write, not just status changes.
func (a *Appointment) Touch(now time.Time) {
	a.UpdatedAt = now
	a.Scheduling.LastModified = now
}

// SlotKey identifies the exclusively bookable (doctor, date, start)
// tuple.
func (a *Appointment) SlotKey() string {
	return a.DoctorID + "|" + a.AppointmentDate + "|" + a.AppointmentTime.Start
}

// Clone returns a deep copy so that engine mutations never partially
// apply to a caller-held document.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.ConsultationReason.Symptoms = append([]string(nil), a.ConsultationReason.Symptoms...)
	if a.AITriage != nil {
		t := *a.AITriage
		c.AITriage = &t
	}
	if a.Payment.PaidAt != nil {
		p := *a.Payment.PaidAt
		c.Payment.PaidAt = &p
	}
	if a.Session != nil {
		s := *a.Session
		if a.Session.StartTime != nil {
			st := *a.Session.StartTime
			s.StartTime = &st
		}
		if a.Session.EndTime != nil {
			et := *a.Session.EndTime
			s.EndTime = &et
		}
		s.TechnicalIssues = append([]string(nil), a.Session.TechnicalIssues...)
		c.Session = &s
	}
	if a.Consultation != nil {
		cons := *a.Consultation
		cons.Prescription = append([]string(nil), a.Consultation.Prescription...)
		cons.LabTests = append([]string(nil), a.Consultation.LabTests...)
		cons.Referrals = append([]string(nil), a.Consultation.Referrals...)
		c.Consultation = &cons
	}
	if a.Feedback != nil {
		f := *a.Feedback
		c.Feedback = &f
	}
	if a.Scheduling.CancellationTime != nil {
		ct := *a.Scheduling.CancellationTime
		c.Scheduling.CancellationTime = &ct
	}
	return &c
}
