package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medslot/backend/internal/domain"
)

type Type string

const (
	TypeBookingCreated        Type = "booking.created"
	TypeBookingCancelled      Type = "booking.cancelled"
	TypeBookingCompleted      Type = "booking.completed"
	TypeBookingRated          Type = "booking.rated"
	TypeAvailabilityRefreshed Type = "availability.refreshed"
)

// Event is published after a mutation has been persisted. Delivery is best effort.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`

	BookingID  int64       `json:"bookingId,omitempty"`
	ProviderID int64       `json:"providerId,omitempty"`
	PatientID  int64       `json:"patientId,omitempty"`
	Date       domain.Date `json:"date,omitzero"`
	Time       string      `json:"time,omitempty"`
	Rating     *int        `json:"rating,omitempty"`

	Availability []AvailabilityChange `json:"availability,omitempty"`
}

type AvailabilityChange struct {
	ProviderID  int64         `json:"providerId"`
	DaysDropped int           `json:"daysDropped"`
	DaysAdded   []domain.Date `json:"daysAdded,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// BookingEvent builds the event for a booking's current row.
func BookingEvent(t Type, b domain.Booking, at time.Time) Event {
	ev := newEvent(t, at)
	ev.BookingID = b.ID
	ev.ProviderID = b.ProviderID
	ev.PatientID = b.PatientID
	ev.Date = b.Date
	ev.Time = b.Time
	if b.Rating != nil {
		r := *b.Rating
		ev.Rating = &r
	}
	return ev
}

func AvailabilityEvent(report domain.WindowReport, at time.Time) Event {
	ev := newEvent(TypeAvailabilityRefreshed, at)
	ev.Date = report.Today
	for _, c := range report.Changes {
		ev.Availability = append(ev.Availability, AvailabilityChange{
			ProviderID:  c.ProviderID,
			DaysDropped: c.DaysDropped,
			DaysAdded:   c.DaysAdded,
		})
	}
	return ev
}

func newEvent(t Type, at time.Time) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{ID: id.String(), Type: t, OccurredAt: at.UTC()}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
