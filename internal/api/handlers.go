package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/swasthyasetu/appointment-service/internal/appointment"
	"github.com/swasthyasetu/appointment-service/internal/audit"
)

type Handler struct {
	appointments appointment.Service
	audits       audit.Service
}

func NewHandler(appointments appointment.Service, audits audit.Service) *Handler {
	return &Handler{appointments: appointments, audits: audits}
}

// CreateAppointment handles POST /api/appointments.
func (h *Handler) CreateAppointment(c *gin.Context) {
	var input appointment.Appointment
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.appointments.Create(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// GetAppointment handles GET /api/appointments/:id.
func (h *Handler) GetAppointment(c *gin.Context) {
	a, err := h.appointments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

type TransitionRequest struct {
	Status appointment.Status `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

// TransitionAppointment handles POST /api/appointments/:id/transition.
func (h *Handler) TransitionAppointment(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.appointments.Transition(c.Request.Context(), c.Param("id"), req.Status, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

type RescheduleRequest struct {
	Reason          string               `json:"reason" binding:"required"`
	AppointmentDate string               `json:"appointment_date" binding:"required"`
	AppointmentTime appointment.TimeSlot `json:"appointment_time" binding:"required"`
}

// RescheduleAppointment handles POST /api/appointments/:id/reschedule.
func (h *Handler) RescheduleAppointment(c *gin.Context) {
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	old, successor, err := h.appointments.Reschedule(
		c.Request.Context(), c.Param("id"), req.Reason, req.AppointmentDate, req.AppointmentTime)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"rescheduled": old,
		"successor":   successor,
	})
}

// AttachTriage handles POST /api/appointments/:id/triage.
func (h *Handler) AttachTriage(c *gin.Context) {
	var triage appointment.AITriage
	if err := c.ShouldBindJSON(&triage); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.appointments.AttachTriage(c.Request.Context(), c.Param("id"), triage)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

// DoctorDay handles GET /api/appointments/doctor/:id/day?date=&status=.
func (h *Handler) DoctorDay(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}

	results, err := h.appointments.DoctorDay(
		c.Request.Context(), c.Param("id"), date, appointment.Status(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// PatientHistory handles GET /api/appointments/patient/:id?limit=.
func (h *Handler) PatientHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := h.appointments.PatientHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// Queue handles GET /api/appointments/queue?status=&limit=.
func (h *Handler) Queue(c *gin.Context) {
	status := appointment.Status(c.Query("status"))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid status query parameter is required"})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := h.appointments.Queue(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// Urgent handles GET /api/appointments/urgent?urgency=&date=.
func (h *Handler) Urgent(c *gin.Context) {
	urgency := appointment.UrgencyLevel(c.DefaultQuery("urgency", string(appointment.UrgencyEmergency)))
	if !urgency.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown urgency level"})
		return
	}

	results, err := h.appointments.Urgent(c.Request.Context(), urgency, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// BySpecialty handles GET /api/appointments/specialty/:name?status=.
func (h *Handler) BySpecialty(c *gin.Context) {
	results, err := h.appointments.BySpecialty(
		c.Request.Context(), c.Param("name"), appointment.Status(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ByDistrict handles GET /api/appointments/district/:district?date=.
func (h *Handler) ByDistrict(c *gin.Context) {
	results, err := h.appointments.ByDistrict(
		c.Request.Context(), c.Param("district"), c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// GetAuditLogs handles GET /api/audit/logs?from=&size=&user_id=&event_type=&resource_id=.
func (h *Handler) GetAuditLogs(c *gin.Context) {
	from, err := strconv.Atoi(c.DefaultQuery("from", "0"))
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' parameter"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "50"))
	if err != nil || size <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'size' parameter"})
		return
	}

	filters := map[string]interface{}{}
	if userID := c.Query("user_id"); userID != "" {
		filters["user_id"] = userID
	}
	if eventType := c.Query("event_type"); eventType != "" {
		filters["event_type"] = eventType
	}
	if resourceID := c.Query("resource_id"); resourceID != "" {
		filters["resource_id"] = resourceID
	}

	events, err := h.audits.QueryEvents(c.Request.Context(), filters, from, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve audit logs"})
		return
	}

	c.JSON(http.StatusOK, events)
}

// respondError maps the error taxonomy to HTTP statuses. Validation and
// illegal-transition errors are final; conflicts invite a fresh read
// and retry by the caller.
func respondError(c *gin.Context, err error) {
	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}

	var terr *appointment.IllegalTransitionError
	if errors.As(err, &terr) {
		c.JSON(http.StatusConflict, gin.H{"error": terr.Error(), "from": terr.From, "to": terr.To})
		return
	}

	switch {
	case errors.Is(err, appointment.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, appointment.ErrSlotConflict),
		errors.Is(err, appointment.ErrVersionConflict),
		errors.Is(err, appointment.ErrDuplicateID),
		errors.Is(err, appointment.ErrTriageAttached):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, appointment.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, appointment.ErrRoleForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
