package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// transitionTable is the single authority on legal status changes.
// Terminal statuses have no entry: nothing leaves them.
var transitionTable = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IllegalTransitionError rejects a transition not in the table. It is a
// business error: reporting it to the caller is final, never retried.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %q to %q", e.From, e.To)
}

// ApplyTransition validates and applies a status change on a, stamping
// timestamps and derived fields atomically with the transition. The
// reason is required for cancelled and rescheduled targets and ignored
// otherwise. Callers pass a private copy: on error a may be left
// untouched but is never partially transitioned.
//
// This is the explicit pipeline step run before the store write; no
// persistence hook ever mutates the document.
func ApplyTransition(a *Appointment, target Status, reason string, now time.Time) error {
	if !target.Valid() {
		return &ValidationError{Fields: []FieldError{
			{Field: "status", Message: fmt.Sprintf("unknown value %q", target)},
		}}
	}
	if target == StatusCancelled || target == StatusRescheduled {
		if reason == "" {
			return &ValidationError{Fields: []FieldError{
				{Field: "reason", Message: fmt.Sprintf("is required when transitioning to %s", target)},
			}}
		}
	}
	if !CanTransition(a.Status, target) {
		return &IllegalTransitionError{From: a.Status, To: target}
	}

	switch target {
	case StatusConfirmed:
		if a.Analytics.ResponseTime == 0 && !a.Scheduling.BookedAt.IsZero() {
			a.Analytics.ResponseTime = floorMinutes(now.Sub(a.Scheduling.BookedAt))
		}
	case StatusInProgress:
		if a.Session == nil {
			a.Session = &Session{SessionID: uuid.New().String()}
		}
		if a.Session.StartTime == nil {
			start := now
			a.Session.StartTime = &start
		}
	case StatusCompleted:
		if a.Session == nil {
			a.Session = &Session{SessionID: uuid.New().String()}
		}
		if a.Session.EndTime == nil {
			end := now
			a.Session.EndTime = &end
		}
		if a.Session.StartTime != nil {
			a.Session.ActualDuration = floorMinutes(a.Session.EndTime.Sub(*a.Session.StartTime))
			if !a.Scheduling.BookedAt.IsZero() {
				a.Analytics.WaitTime = floorMinutes(a.Session.StartTime.Sub(a.Scheduling.BookedAt))
			}
		}
	case StatusCancelled:
		a.Scheduling.CancellationReason = reason
		cancelled := now
		a.Scheduling.CancellationTime = &cancelled
	}

	a.Status = target
	a.Touch(now)
	return nil
}

// floorMinutes converts a non-negative duration to whole minutes,
// flooring the remainder.
func floorMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
