package domain

import "time"

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusDone      BookingStatus = "done"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusBooked, BookingStatusCancelled, BookingStatusDone:
		return true
	}
	return false
}

// CanTransition reports whether a booking in status s may move to next. Only a
// booked booking changes status, and only once.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	if s != BookingStatusBooked {
		return false
	}
	return next == BookingStatusCancelled || next == BookingStatusDone
}

// Booking is one accepted booking in the ledger. Rows are never removed.
type Booking struct {
	ID          int64         `json:"id"`
	PatientID   int64         `json:"patientId"`
	ProviderID  int64         `json:"providerId"`
	Date        Date          `json:"date"`
	Time        string        `json:"time"`
	Status      BookingStatus `json:"status"`
	Rating      *int          `json:"rating"`
	BookedAt    time.Time     `json:"bookedAt"`
	CancelledAt *time.Time    `json:"cancelledAt,omitempty"`
}

func (b Booking) Holds(providerID int64, date Date, label string) bool {
	return b.Status == BookingStatusBooked &&
		b.ProviderID == providerID &&
		b.Date == date &&
		b.Time == label
}

func (b Booking) Clone() Booking {
	out := b
	if b.Rating != nil {
		r := *b.Rating
		out.Rating = &r
	}
	if b.CancelledAt != nil {
		c := *b.CancelledAt
		out.CancelledAt = &c
	}
	return out
}

// BookingRequest is a prospective claim on one unit.
type BookingRequest struct {
	PatientID  int64
	ProviderID int64
	Date       Date
	Time       string
	// IdempotencyKey is an optional client key. A retry carrying the same key gets
	// the booking the first attempt created.
	IdempotencyKey string
}
