package appointment

// urgencyBaseScore maps the booking urgency level to the base priority
// score used for queue ordering by external schedulers. Ties are broken
// by earliest scheduling.booked_at on the query side.
var urgencyBaseScore = map[UrgencyLevel]float64{
	UrgencyEmergency: 100,
	UrgencyHigh:      75,
	UrgencyMedium:    50,
	UrgencyLow:       25,
}

// ComputePriority derives priority_score and is_emergency from the
// consultation reason and, when attached, the AI triage record. It runs
// once at booking and again only when triage is attached; status
// transitions never recompute it.
func ComputePriority(a *Appointment) {
	score := urgencyBaseScore[a.ConsultationReason.UrgencyLevel]
	if a.AITriage != nil {
		if triaged := a.AITriage.TriageScore * 10; triaged > score {
			score = triaged
		}
	}
	a.PriorityScore = score

	a.IsEmergency = a.ConsultationReason.UrgencyLevel == UrgencyEmergency ||
		(a.AITriage != nil && a.AITriage.PriorityLevel == TriageCritical)
}
