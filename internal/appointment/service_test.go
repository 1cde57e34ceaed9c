package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/swasthyasetu/appointment-service/internal/audit"
	"github.com/swasthyasetu/appointment-service/internal/auth"
	"github.com/swasthyasetu/appointment-service/internal/encryption"
)

// auditRecorder captures audit events in memory for assertions.
type auditRecorder struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *auditRecorder) LogEvent(_ context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *auditRecorder) QueryEvents(context.Context, map[string]interface{}, int, int) ([]audit.AuditEvent, error) {
	return nil, nil
}

func (r *auditRecorder) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func newTestService(t *testing.T) (*service, *MemoryStore, *auditRecorder) {
	t.Helper()
	enc, err := encryption.NewService()
	if err != nil {
		t.Fatalf("encryption service: %v", err)
	}
	store := NewMemoryStore()
	recorder := &auditRecorder{}
	svc := NewService(store, enc, recorder, nil, zap.NewNop()).(*service)
	return svc, store, recorder
}

func ctxAs(role string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: "user-1", Role: role})
}

func booking() *Appointment {
	return &Appointment{
		PatientID:       "patient-1",
		DoctorID:        "doctor-1",
		AppointmentDate: "2025-09-10",
		AppointmentTime: TimeSlot{Start: "14:30"},
		ConsultationMode: ModeVideo,
		Specialty:        "cardiology",
		PatientInfo: PatientInfo{
			Name:   "Asha Kumari",
			Age:    34,
			Gender: "female",
			Phone:  "+91-9876543210",
			Location: Location{
				District: "Patna",
				State:    "Bihar",
				Pincode:  "800001",
			},
		},
		ConsultationReason: ConsultationReason{
			ChiefComplaint: "persistent chest pain",
			Symptoms:       []string{"chest pain", "shortness of breath"},
		},
		Payment: Payment{Amount: 500},
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc, _, recorder := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if created.Status != StatusScheduled {
		t.Errorf("status = %s, want scheduled", created.Status)
	}
	if !strings.HasPrefix(created.AppointmentID, "APT-") {
		t.Errorf("appointment ID %q lacks APT- prefix", created.AppointmentID)
	}
	if created.Version != 1 {
		t.Errorf("version = %d, want 1", created.Version)
	}
	if created.AppointmentTime.Duration != DefaultDurationMinutes {
		t.Errorf("duration = %d, want %d", created.AppointmentTime.Duration, DefaultDurationMinutes)
	}
	if created.AppointmentTime.End != "15:00" {
		t.Errorf("derived end = %s, want 15:00", created.AppointmentTime.End)
	}
	if created.ConsultationType != ConsultationScheduled {
		t.Errorf("consultation type = %s, want scheduled", created.ConsultationType)
	}
	if created.ConsultationReason.Severity != SeverityMild {
		t.Errorf("severity = %s, want Mild", created.ConsultationReason.Severity)
	}
	if created.ConsultationReason.UrgencyLevel != UrgencyMedium {
		t.Errorf("urgency = %s, want Medium", created.ConsultationReason.UrgencyLevel)
	}
	if created.Payment.Currency != DefaultCurrency || created.Payment.Status != PaymentPending {
		t.Errorf("payment defaults wrong: %+v", created.Payment)
	}
	if created.Scheduling.TimeZone != DefaultTimeZone {
		t.Errorf("time zone = %s, want %s", created.Scheduling.TimeZone, DefaultTimeZone)
	}
	if created.Scheduling.BookedBy != "user-1" {
		t.Errorf("booked_by = %s, want user-1", created.Scheduling.BookedBy)
	}
	if created.PriorityScore != 50 {
		t.Errorf("priority = %v, want 50 for default Medium urgency", created.PriorityScore)
	}
	if created.IsEmergency {
		t.Error("default booking flagged emergency")
	}
	if created.PatientInfo.Phone != "+91-9876543210" {
		t.Errorf("response phone = %q, want plaintext", created.PatientInfo.Phone)
	}

	got := recorder.types()
	if len(got) != 1 || got[0] != audit.EventBook {
		t.Errorf("audit events = %v, want [BOOK]", got)
	}
}

func TestCreateEncryptsPhoneAtRest(t *testing.T) {
	svc, store, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	raw, err := store.Get(context.Background(), created.AppointmentID)
	if err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	if raw.PatientInfo.Phone == "" || raw.PatientInfo.Phone == "+91-9876543210" {
		t.Errorf("stored phone is not encrypted: %q", raw.PatientInfo.Phone)
	}

	fetched, err := svc.Get(ctxAs(auth.RoleDoctor), created.AppointmentID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fetched.PatientInfo.Phone != "+91-9876543210" {
		t.Errorf("decrypted phone = %q", fetched.PatientInfo.Phone)
	}
}

func TestCreateValidationFailure(t *testing.T) {
	svc, _, _ := newTestService(t)

	input := booking()
	input.ConsultationReason.ChiefComplaint = ""

	_, err := svc.Create(ctxAs(auth.RolePatient), input)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !verr.Has("consultation_reason.chief_complaint") {
		t.Errorf("expected chief complaint violation, got %v", verr.Fields)
	}
}

func TestCreateDoubleBookingRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Create(ctxAs(auth.RolePatient), booking()); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	second := booking()
	second.PatientID = "patient-2"
	if _, err := svc.Create(ctxAs(auth.RolePatient), second); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Create(context.Background(), booking()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCreateRoleGate(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Create(ctxAs(auth.RolePharmacy), booking()); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("expected ErrRoleForbidden, got %v", err)
	}
}

func TestTransitionLifecycleDerivesAnalytics(t *testing.T) {
	svc, _, _ := newTestService(t)

	t0 := time.Date(2025, 9, 10, 13, 0, 0, 0, time.UTC)
	clock := t0
	svc.now = func() time.Time { return clock }

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	id := created.AppointmentID

	clock = t0.Add(5 * time.Minute)
	confirmed, err := svc.Transition(ctxAs(auth.RoleDoctor), id, StatusConfirmed, "")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if confirmed.Analytics.ResponseTime != 5 {
		t.Errorf("response time = %d, want 5", confirmed.Analytics.ResponseTime)
	}

	clock = t0.Add(time.Hour)
	started, err := svc.Transition(ctxAs(auth.RoleDoctor), id, StatusInProgress, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.Session == nil || started.Session.StartTime == nil {
		t.Fatal("session not started")
	}

	clock = t0.Add(90 * time.Minute)
	completed, err := svc.Transition(ctxAs(auth.RoleDoctor), id, StatusCompleted, "")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Analytics.WaitTime != 60 {
		t.Errorf("wait time = %d, want 60 (booked 13:00, started 14:00)", completed.Analytics.WaitTime)
	}
	if completed.Session.ActualDuration != 30 {
		t.Errorf("actual duration = %d, want 30", completed.Session.ActualDuration)
	}
	if !completed.Status.Terminal() {
		t.Error("completed is not terminal")
	}
}

func TestTransitionIllegalFromTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Transition(ctxAs(auth.RolePatient), created.AppointmentID, StatusCancelled, "plans changed"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err = svc.Transition(ctxAs(auth.RoleDoctor), created.AppointmentID, StatusConfirmed, "")
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
	if illegal.From != StatusCancelled || illegal.To != StatusConfirmed {
		t.Errorf("unexpected pair %s -> %s", illegal.From, illegal.To)
	}
}

func TestTransitionCancelWithoutReason(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = svc.Transition(ctxAs(auth.RolePatient), created.AppointmentID, StatusCancelled, "")
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has("reason") {
		t.Fatalf("expected ValidationError on reason, got %v", err)
	}
}

func TestTransitionDirectRescheduleRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, err = svc.Transition(ctxAs(auth.RolePatient), created.AppointmentID, StatusRescheduled, "moving")
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has("status") {
		t.Fatalf("expected ValidationError on status, got %v", err)
	}
}

func TestTransitionRoleGates(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Patients cannot confirm appointments, only doctors and admins.
	if _, err := svc.Transition(ctxAs(auth.RolePatient), created.AppointmentID, StatusConfirmed, ""); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("expected ErrRoleForbidden for patient confirm, got %v", err)
	}
	// Patients may cancel their own bookings.
	if _, err := svc.Transition(ctxAs(auth.RolePatient), created.AppointmentID, StatusCancelled, "plans changed"); err != nil {
		t.Fatalf("patient cancel failed: %v", err)
	}
}

func TestCancelReleasesSlot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := ctxAs(auth.RolePatient)

	created, err := svc.Create(ctx, booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Transition(ctx, created.AppointmentID, StatusCancelled, "plans changed"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	rebooked, err := svc.Create(ctx, booking())
	if err != nil {
		t.Fatalf("rebooking a cancelled slot failed: %v", err)
	}
	if rebooked.AppointmentID == created.AppointmentID {
		t.Error("rebooking reused the cancelled appointment ID")
	}
}

func TestRescheduleChain(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := ctxAs(auth.RolePatient)

	created, err := svc.Create(ctx, booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	predecessor, successor, err := svc.Reschedule(ctx, created.AppointmentID,
		"doctor unavailable", "2025-09-12", TimeSlot{Start: "10:00"})
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}

	if predecessor.Status != StatusRescheduled {
		t.Errorf("predecessor status = %s, want rescheduled", predecessor.Status)
	}
	if predecessor.Scheduling.RescheduledTo != successor.AppointmentID {
		t.Errorf("predecessor link = %q, want %q", predecessor.Scheduling.RescheduledTo, successor.AppointmentID)
	}
	if successor.Scheduling.RescheduledFrom != predecessor.AppointmentID {
		t.Errorf("successor link = %q, want %q", successor.Scheduling.RescheduledFrom, predecessor.AppointmentID)
	}
	if successor.Status != StatusScheduled {
		t.Errorf("successor status = %s, want scheduled", successor.Status)
	}
	if successor.AppointmentDate != "2025-09-12" || successor.AppointmentTime.Start != "10:00" {
		t.Errorf("successor slot wrong: %s %s", successor.AppointmentDate, successor.AppointmentTime.Start)
	}
	if successor.AppointmentTime.End != "10:30" {
		t.Errorf("successor end = %s, want 10:30", successor.AppointmentTime.End)
	}
	if successor.Session != nil || successor.Consultation != nil || successor.Feedback != nil {
		t.Error("per-document records carried into the successor")
	}
	if successor.Analytics != (Analytics{}) {
		t.Errorf("successor analytics not reset: %+v", successor.Analytics)
	}
	if successor.Version != 1 {
		t.Errorf("successor version = %d, want 1", successor.Version)
	}
	if successor.PatientInfo.Phone != "+91-9876543210" {
		t.Errorf("successor phone = %q, want plaintext in response", successor.PatientInfo.Phone)
	}

	// The predecessor's slot is released; a new booking may take it.
	if _, err := svc.Create(ctx, booking()); err != nil {
		t.Fatalf("rebooking the vacated slot failed: %v", err)
	}

	types := recorder.types()
	var sawReschedule bool
	for _, et := range types {
		if et == audit.EventReschedule {
			sawReschedule = true
		}
	}
	if !sawReschedule {
		t.Errorf("audit events %v missing RESCHEDULE", types)
	}
}

func TestRescheduleRequiresReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := ctxAs(auth.RolePatient)

	created, err := svc.Create(ctx, booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	_, _, err = svc.Reschedule(ctx, created.AppointmentID, "", "2025-09-12", TimeSlot{Start: "10:00"})
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has("reason") {
		t.Fatalf("expected ValidationError on reason, got %v", err)
	}
}

func TestRescheduleIntoTakenSlot(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := ctxAs(auth.RolePatient)

	created, err := svc.Create(ctx, booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	blocker := booking()
	blocker.PatientID = "patient-2"
	blocker.AppointmentDate = "2025-09-12"
	blocker.AppointmentTime = TimeSlot{Start: "10:00"}
	if _, err := svc.Create(ctx, blocker); err != nil {
		t.Fatalf("blocker booking failed: %v", err)
	}

	_, _, err = svc.Reschedule(ctx, created.AppointmentID, "moving", "2025-09-12", TimeSlot{Start: "10:00"})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	// The predecessor must be untouched by the failed reschedule.
	cur, err := store.Get(context.Background(), created.AppointmentID)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if cur.Status != StatusScheduled || cur.Scheduling.RescheduledTo != "" {
		t.Errorf("predecessor mutated by failed reschedule: status=%s link=%q", cur.Status, cur.Scheduling.RescheduledTo)
	}
}

func TestRescheduleFromTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := ctxAs(auth.RolePatient)

	created, err := svc.Create(ctx, booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Transition(ctx, created.AppointmentID, StatusCancelled, "plans changed"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, _, err = svc.Reschedule(ctx, created.AppointmentID, "second thoughts", "2025-09-12", TimeSlot{Start: "10:00"})
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
}

func TestAttachTriageRecomputesPriority(t *testing.T) {
	svc, _, _ := newTestService(t)

	input := booking()
	input.ConsultationReason.UrgencyLevel = UrgencyHigh
	created, err := svc.Create(ctxAs(auth.RolePatient), input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.PriorityScore != 75 {
		t.Fatalf("priority before triage = %v, want 75", created.PriorityScore)
	}

	triaged, err := svc.AttachTriage(ctxAs(auth.RoleAISystem), created.AppointmentID, AITriage{
		TriageScore:   9.2,
		PriorityLevel: TriageCritical,
		AIConfidence:  0.87,
	})
	if err != nil {
		t.Fatalf("attach triage failed: %v", err)
	}
	if triaged.PriorityScore != 92 {
		t.Errorf("priority after triage = %v, want 92", triaged.PriorityScore)
	}
	if !triaged.IsEmergency {
		t.Error("critical triage did not flag emergency")
	}
	if triaged.AITriage == nil || triaged.AITriage.AssessedAt.IsZero() {
		t.Error("assessed_at not stamped")
	}
}

func TestAttachTriageOnlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	triage := AITriage{TriageScore: 5, PriorityLevel: TriageMedium, AIConfidence: 0.7}
	if _, err := svc.AttachTriage(ctxAs(auth.RoleAISystem), created.AppointmentID, triage); err != nil {
		t.Fatalf("first attach failed: %v", err)
	}
	if _, err := svc.AttachTriage(ctxAs(auth.RoleAISystem), created.AppointmentID, triage); !errors.Is(err, ErrTriageAttached) {
		t.Fatalf("expected ErrTriageAttached, got %v", err)
	}
}

func TestAttachTriageRoleGate(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctxAs(auth.RolePatient), booking())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	triage := AITriage{TriageScore: 5, PriorityLevel: TriageMedium, AIConfidence: 0.7}
	if _, err := svc.AttachTriage(ctxAs(auth.RoleDoctor), created.AppointmentID, triage); !errors.Is(err, ErrRoleForbidden) {
		t.Fatalf("expected ErrRoleForbidden, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Get(ctxAs(auth.RoleDoctor), "APT-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueriesDecryptPhones(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := ctxAs(auth.RolePatient)

	if _, err := svc.Create(ctx, booking()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	day, err := svc.DoctorDay(ctx, "doctor-1", "2025-09-10", "")
	if err != nil {
		t.Fatalf("DoctorDay failed: %v", err)
	}
	if len(day) != 1 {
		t.Fatalf("got %d results, want 1", len(day))
	}
	if day[0].PatientInfo.Phone != "+91-9876543210" {
		t.Errorf("query result phone = %q, want plaintext", day[0].PatientInfo.Phone)
	}

	district, err := svc.ByDistrict(ctx, "Patna", "2025-09-10")
	if err != nil {
		t.Fatalf("ByDistrict failed: %v", err)
	}
	if len(district) != 1 {
		t.Errorf("district query got %d results, want 1", len(district))
	}
}
