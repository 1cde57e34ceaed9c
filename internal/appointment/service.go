package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swasthyasetu/appointment-service/internal/audit"
	"github.com/swasthyasetu/appointment-service/internal/auth"
	"github.com/swasthyasetu/appointment-service/internal/encryption"
)

var (
	ErrUnauthenticated = errors.New("caller identity is missing")
	ErrRoleForbidden   = errors.New("role is not permitted for this operation")

	// ErrTriageAttached rejects a second triage write. Triage is a
	// one-time attachment from the external triage collaborator.
	ErrTriageAttached = errors.New("triage is already attached")
)

// ArchiveSink receives terminal appointments for analytics retention.
// Implemented by the Postgres archive; archive failures never fail the
// transition because the primary store still holds the document.
type ArchiveSink interface {
	Archive(ctx context.Context, a *Appointment) error
}

// Service is the sole mutation authority for appointment documents.
// The presentation layer reads through it and never writes directly.
type Service interface {
	Create(ctx context.Context, input *Appointment) (*Appointment, error)
	Get(ctx context.Context, appointmentID string) (*Appointment, error)
	Transition(ctx context.Context, appointmentID string, target Status, reason string) (*Appointment, error)
	Reschedule(ctx context.Context, appointmentID, reason, newDate string, newSlot TimeSlot) (*Appointment, *Appointment, error)
	AttachTriage(ctx context.Context, appointmentID string, triage AITriage) (*Appointment, error)

	DoctorDay(ctx context.Context, doctorID, date string, status Status) ([]*Appointment, error)
	PatientHistory(ctx context.Context, patientID string, limit int) ([]*Appointment, error)
	Queue(ctx context.Context, status Status, limit int) ([]*Appointment, error)
	Urgent(ctx context.Context, urgency UrgencyLevel, date string) ([]*Appointment, error)
	BySpecialty(ctx context.Context, specialty string, status Status) ([]*Appointment, error)
	ByDistrict(ctx context.Context, district, date string) ([]*Appointment, error)
}

// Role permissions per mutation. The external authentication service
// vouches for the role; only membership is checked here.
var (
	createRoles = []string{auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin, auth.RoleAISystem}
	triageRoles = []string{auth.RoleAISystem, auth.RoleAdmin}

	transitionRoles = map[Status][]string{
		StatusConfirmed:   {auth.RoleDoctor, auth.RoleAdmin},
		StatusInProgress:  {auth.RoleDoctor, auth.RoleAdmin},
		StatusCompleted:   {auth.RoleDoctor, auth.RoleAdmin},
		StatusNoShow:      {auth.RoleDoctor, auth.RoleAdmin},
		StatusCancelled:   {auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin},
		StatusRescheduled: {auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin},
	}
)

type service struct {
	store   Store
	encrypt encryption.Service
	audit   audit.Service
	archive ArchiveSink
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store Store, encrypt encryption.Service, auditService audit.Service, archive ArchiveSink, logger *zap.Logger) Service {
	return &service{
		store:   store,
		encrypt: encrypt,
		audit:   auditService,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *service) Create(ctx context.Context, input *Appointment) (*Appointment, error) {
	id, err := s.requireRole(ctx, createRoles)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := input.Clone()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AppointmentID == "" {
		a.AppointmentID = "APT-" + uuid.New().String()
	}
	a.Status = StatusScheduled
	if a.ConsultationType == "" {
		a.ConsultationType = ConsultationScheduled
	}
	if a.ConsultationReason.Severity == "" {
		a.ConsultationReason.Severity = SeverityMild
	}
	if a.ConsultationReason.UrgencyLevel == "" {
		a.ConsultationReason.UrgencyLevel = UrgencyMedium
	}
	if a.Payment.Currency == "" {
		a.Payment.Currency = DefaultCurrency
	}
	if a.Payment.Status == "" {
		a.Payment.Status = PaymentPending
	}
	if a.Scheduling.TimeZone == "" {
		a.Scheduling.TimeZone = DefaultTimeZone
	}
	if a.AppointmentTime.Duration == 0 {
		a.AppointmentTime.Duration = DefaultDurationMinutes
	}
	if a.AppointmentTime.End == "" && a.AppointmentTime.Start != "" {
		if end, err := a.AppointmentTime.DeriveEnd(); err == nil {
			a.AppointmentTime.End = end
		}
	}
	a.Scheduling.BookedAt = now
	a.Scheduling.BookedBy = id.UserID
	a.Version = 1
	a.CreatedAt = now
	a.Touch(now)

	if verr := a.Validate(); verr != nil {
		return nil, verr
	}
	ComputePriority(a)

	plainPhone := a.PatientInfo.Phone
	if err := s.encryptPhone(a); err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, a); err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, audit.EventBook, "CREATE", a.AppointmentID, map[string]interface{}{
		"doctor_id": a.DoctorID,
		"date":      a.AppointmentDate,
		"start":     a.AppointmentTime.Start,
	})

	out := a.Clone()
	out.PatientInfo.Phone = plainPhone
	return out, nil
}

func (s *service) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	a, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.decryptPhone(a); err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, audit.EventAccess, "READ", a.AppointmentID, nil)
	return a, nil
}

func (s *service) Transition(ctx context.Context, appointmentID string, target Status, reason string) (*Appointment, error) {
	if !target.Valid() {
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "status", Message: fmt.Sprintf("unknown value %q", target)},
		}}
	}
	if target == StatusRescheduled {
		// Rescheduling spawns a successor document; the dedicated
		// operation owns that two-document write.
		return nil, &ValidationError{Fields: []FieldError{
			{Field: "status", Message: "rescheduling requires the reschedule operation"},
		}}
	}

	id, err := s.requireRole(ctx, transitionRoles[target])
	if err != nil {
		return nil, err
	}

	cur, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	a := cur.Clone()
	if err := ApplyTransition(a, target, reason, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, audit.EventTransition, "TRANSITION", a.AppointmentID, map[string]interface{}{
		"from": cur.Status,
		"to":   target,
	})

	if a.Status.Terminal() {
		s.archiveTerminal(ctx, id, a)
	}

	if err := s.decryptPhone(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *service) Reschedule(ctx context.Context, appointmentID, reason, newDate string, newSlot TimeSlot) (*Appointment, *Appointment, error) {
	id, err := s.requireRole(ctx, transitionRoles[StatusRescheduled])
	if err != nil {
		return nil, nil, err
	}
	if reason == "" {
		return nil, nil, &ValidationError{Fields: []FieldError{
			{Field: "reason", Message: "is required when rescheduling"},
		}}
	}

	old, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(old.Status, StatusRescheduled) {
		return nil, nil, &IllegalTransitionError{From: old.Status, To: StatusRescheduled}
	}

	now := s.now()
	successor := s.buildSuccessor(old, id, newDate, newSlot, now)
	if verr := successor.Validate(); verr != nil {
		return nil, nil, verr
	}
	ComputePriority(successor)

	// Two-document discipline: create the successor first, then link
	// the predecessor. An unlinked successor is detectable through its
	// rescheduled_from field and recoverable, never data loss.
	if err := s.store.Insert(ctx, successor); err != nil {
		return nil, nil, err
	}

	linked, err := s.linkPredecessor(ctx, old, successor.AppointmentID, reason, now)
	if err != nil {
		return nil, nil, fmt.Errorf("successor %s created but predecessor link failed: %w", successor.AppointmentID, err)
	}

	s.logEvent(ctx, id, audit.EventReschedule, "RESCHEDULE", linked.AppointmentID, map[string]interface{}{
		"successor": successor.AppointmentID,
		"date":      newDate,
		"start":     newSlot.Start,
	})

	s.archiveTerminal(ctx, id, linked)

	if err := s.decryptPhone(linked); err != nil {
		return nil, nil, err
	}
	if err := s.decryptPhone(successor); err != nil {
		return nil, nil, err
	}
	return linked, successor, nil
}

// buildSuccessor derives the replacement booking from the predecessor.
// Session, consultation, feedback and analytics are per-document and
// start fresh; triage re-attaches externally if still relevant.
func (s *service) buildSuccessor(old *Appointment, id auth.Identity, newDate string, newSlot TimeSlot, now time.Time) *Appointment {
	a := old.Clone()
	a.ID = uuid.New().String()
	a.AppointmentID = "APT-" + uuid.New().String()
	a.Status = StatusScheduled
	a.AppointmentDate = newDate
	a.AppointmentTime = newSlot
	if a.AppointmentTime.Duration == 0 {
		a.AppointmentTime.Duration = DefaultDurationMinutes
	}
	if a.AppointmentTime.End == "" && a.AppointmentTime.Start != "" {
		if end, err := a.AppointmentTime.DeriveEnd(); err == nil {
			a.AppointmentTime.End = end
		}
	}

	a.AITriage = nil
	a.Session = nil
	a.Consultation = nil
	a.Feedback = nil
	a.Analytics = Analytics{}

	a.Payment.Status = PaymentPending
	a.Payment.TransactionID = ""
	a.Payment.PaidAt = nil

	a.Scheduling = Scheduling{
		BookedAt:        now,
		BookedBy:        id.UserID,
		TimeZone:        old.Scheduling.TimeZone,
		RescheduledFrom: old.AppointmentID,
	}
	a.Version = 1
	a.CreatedAt = now
	a.Touch(now)
	return a
}

// linkPredecessor transitions the old document to rescheduled and
// records the successor link, retrying once after a lost
// compare-and-swap race.
func (s *service) linkPredecessor(ctx context.Context, old *Appointment, successorID, reason string, now time.Time) (*Appointment, error) {
	for attempt := 0; attempt < 2; attempt++ {
		a := old.Clone()
		if err := ApplyTransition(a, StatusRescheduled, reason, now); err != nil {
			return nil, err
		}
		a.Scheduling.RescheduledTo = successorID

		err := s.store.Update(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt == 1 {
			return nil, err
		}

		fresh, err := s.store.Get(ctx, old.AppointmentID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(fresh.Status, StatusRescheduled) {
			return nil, &IllegalTransitionError{From: fresh.Status, To: StatusRescheduled}
		}
		old = fresh
	}
	return nil, ErrVersionConflict
}

func (s *service) AttachTriage(ctx context.Context, appointmentID string, triage AITriage) (*Appointment, error) {
	id, err := s.requireRole(ctx, triageRoles)
	if err != nil {
		return nil, err
	}

	cur, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if cur.AITriage != nil {
		return nil, ErrTriageAttached
	}

	now := s.now()
	a := cur.Clone()
	if triage.AssessedAt.IsZero() {
		triage.AssessedAt = now
	}
	a.AITriage = &triage
	if verr := a.Validate(); verr != nil {
		return nil, verr
	}
	ComputePriority(a)
	a.Touch(now)

	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, audit.EventTriage, "ATTACH", a.AppointmentID, map[string]interface{}{
		"triage_score":   triage.TriageScore,
		"priority_level": triage.PriorityLevel,
	})

	if err := s.decryptPhone(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *service) DoctorDay(ctx context.Context, doctorID, date string, status Status) ([]*Appointment, error) {
	return s.decryptAll(s.store.DoctorDay(ctx, doctorID, date, status))
}

func (s *service) PatientHistory(ctx context.Context, patientID string, limit int) ([]*Appointment, error) {
	return s.decryptAll(s.store.PatientHistory(ctx, patientID, limit))
}

func (s *service) Queue(ctx context.Context, status Status, limit int) ([]*Appointment, error) {
	return s.decryptAll(s.store.Queue(ctx, status, limit))
}

func (s *service) Urgent(ctx context.Context, urgency UrgencyLevel, date string) ([]*Appointment, error) {
	return s.decryptAll(s.store.Urgent(ctx, urgency, date))
}

func (s *service) BySpecialty(ctx context.Context, specialty string, status Status) ([]*Appointment, error) {
	return s.decryptAll(s.store.BySpecialty(ctx, specialty, status))
}

func (s *service) ByDistrict(ctx context.Context, district, date string) ([]*Appointment, error) {
	return s.decryptAll(s.store.ByDistrict(ctx, district, date))
}

func (s *service) requireRole(ctx context.Context, allowed []string) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return auth.Identity{}, ErrUnauthenticated
	}
	for _, role := range allowed {
		if id.Role == role {
			return id, nil
		}
	}
	return auth.Identity{}, fmt.Errorf("%w: role %q", ErrRoleForbidden, id.Role)
}

func (s *service) archiveTerminal(ctx context.Context, id auth.Identity, a *Appointment) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, a); err != nil {
		// Recoverable: the primary store holds the document; the
		// archive row can be rebuilt from it.
		s.logger.Error("failed to archive terminal appointment",
			zap.String("appointment_id", a.AppointmentID),
			zap.Error(err),
		)
		return
	}
	s.logEvent(ctx, id, audit.EventArchive, "ARCHIVE", a.AppointmentID, map[string]interface{}{
		"final_status": a.Status,
	})
}

func (s *service) logEvent(ctx context.Context, id auth.Identity, eventType audit.EventType, action, resourceID string, details map[string]interface{}) {
	event := &audit.AuditEvent{
		EventType:  eventType,
		UserID:     id.UserID,
		Role:       id.Role,
		Action:     action,
		Resource:   "appointment",
		ResourceID: resourceID,
		Status:     "success",
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			event.Details = json.RawMessage(raw)
		}
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("failed to log audit event",
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

func (s *service) encryptPhone(a *Appointment) error {
	if a.PatientInfo.Phone == "" {
		return nil
	}
	encrypted, err := s.encrypt.Encrypt([]byte(a.PatientInfo.Phone))
	if err != nil {
		return fmt.Errorf("failed to encrypt patient contact: %w", err)
	}
	a.PatientInfo.Phone = encrypted
	return nil
}

func (s *service) decryptPhone(a *Appointment) error {
	if a.PatientInfo.Phone == "" {
		return nil
	}
	decrypted, err := s.encrypt.Decrypt(a.PatientInfo.Phone)
	if err != nil {
		return fmt.Errorf("failed to decrypt patient contact: %w", err)
	}
	a.PatientInfo.Phone = string(decrypted)
	return nil
}

func (s *service) decryptAll(results []*Appointment, err error) ([]*Appointment, error) {
	if err != nil {
		return nil, err
	}
	for _, a := range results {
		if err := s.decryptPhone(a); err != nil {
			return nil, err
		}
	}
	return results, nil
}
