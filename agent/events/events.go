package events

import (
	"time"
)

const (
	TopicAppointmentBooked      = "appointment.booked"
	TopicAppointmentCancelled   = "appointment.cancelled"
	TopicAppointmentRescheduled = "appointment.rescheduled"
	TopicTurnCompleted          = "turn.completed"
)

// AppointmentTopics are forwarded to the notification destination.
var AppointmentTopics = []string{
	TopicAppointmentBooked,
	TopicAppointmentCancelled,
	TopicAppointmentRescheduled,
}

type AppointmentEvent struct {
	Type            string    `json:"type"`
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	PractitionerID  string    `json:"practitioner_id"`
	Practitioner    string    `json:"practitioner"`
	Start           time.Time `json:"start"`
	RescheduledFrom string    `json:"rescheduled_from,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type TurnEvent struct {
	ConversationID string    `json:"conversation_id"`
	Status         string    `json:"status"`
	Specialist     string    `json:"specialist,omitempty"`
	Iterations     int       `json:"iterations"`
	DurationMS     int64     `json:"duration_ms"`
	OccurredAt     time.Time `json:"occurred_at"`
}
