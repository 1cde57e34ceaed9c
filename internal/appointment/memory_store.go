package appointment

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store with the same
// semantics as the MongoDB store, including slot exclusivity and
// compare-and-swap updates. It backs tests and local sandboxes.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Appointment // appointment ID -> document
	slots map[string]string       // slot key -> appointment ID holding it
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Appointment),
		slots: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[a.AppointmentID]; exists {
		return ErrDuplicateID
	}

	if holder, taken := s.slots[a.SlotKey()]; taken && holder != a.AppointmentID {
		if cur, ok := s.byID[holder]; ok && !cur.Status.Terminal() {
			return ErrSlotConflict
		}
	}

	s.byID[a.AppointmentID] = a.Clone()
	if !a.Status.Terminal() {
		s.slots[a.SlotKey()] = a.AppointmentID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, appointmentID string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[appointmentID]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[a.AppointmentID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}

	stored := a.Clone()
	stored.Version = a.Version + 1
	s.byID[a.AppointmentID] = stored

	// A document leaving a non-terminal status releases its slot.
	if stored.Status.Terminal() {
		if holder, taken := s.slots[stored.SlotKey()]; taken && holder == stored.AppointmentID {
			delete(s.slots, stored.SlotKey())
		}
	}

	a.Version = stored.Version
	return nil
}

func (s *MemoryStore) DoctorDay(_ context.Context, doctorID, date string, status Status) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		if a.DoctorID != doctorID || a.AppointmentDate != date {
			return false
		}
		return status == "" || a.Status == status
	}, func(x, y *Appointment) bool {
		return x.AppointmentTime.Start < y.AppointmentTime.Start
	}, 0), nil
}

func (s *MemoryStore) PatientHistory(_ context.Context, patientID string, limit int) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		return a.PatientID == patientID
	}, func(x, y *Appointment) bool {
		if x.AppointmentDate != y.AppointmentDate {
			return x.AppointmentDate > y.AppointmentDate
		}
		return x.AppointmentTime.Start > y.AppointmentTime.Start
	}, limit), nil
}

func (s *MemoryStore) Queue(_ context.Context, status Status, limit int) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		return a.Status == status
	}, func(x, y *Appointment) bool {
		if x.AppointmentDate != y.AppointmentDate {
			return x.AppointmentDate < y.AppointmentDate
		}
		return x.AppointmentTime.Start < y.AppointmentTime.Start
	}, limit), nil
}

func (s *MemoryStore) Urgent(_ context.Context, urgency UrgencyLevel, date string) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		if a.ConsultationReason.UrgencyLevel != urgency {
			return false
		}
		return date == "" || a.AppointmentDate == date
	}, func(x, y *Appointment) bool {
		if x.PriorityScore != y.PriorityScore {
			return x.PriorityScore > y.PriorityScore
		}
		// Tie-break by earliest booking.
		return x.Scheduling.BookedAt.Before(y.Scheduling.BookedAt)
	}, 0), nil
}

func (s *MemoryStore) BySpecialty(_ context.Context, specialty string, status Status) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		if a.Specialty != specialty {
			return false
		}
		return status == "" || a.Status == status
	}, func(x, y *Appointment) bool {
		if x.AppointmentDate != y.AppointmentDate {
			return x.AppointmentDate < y.AppointmentDate
		}
		return x.AppointmentTime.Start < y.AppointmentTime.Start
	}, 0), nil
}

func (s *MemoryStore) ByDistrict(_ context.Context, district, date string) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		if a.PatientInfo.Location.District != district {
			return false
		}
		return date == "" || a.AppointmentDate == date
	}, func(x, y *Appointment) bool {
		if x.AppointmentDate != y.AppointmentDate {
			return x.AppointmentDate < y.AppointmentDate
		}
		return x.AppointmentTime.Start < y.AppointmentTime.Start
	}, 0), nil
}

func (s *MemoryStore) filter(keep func(*Appointment) bool, less func(x, y *Appointment) bool, limit int) []*Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Appointment
	for _, a := range s.byID {
		if keep(a) {
			results = append(results, a.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
