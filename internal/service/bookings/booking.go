package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"medslot/backend/internal/domain"
	"medslot/backend/internal/events"
	"medslot/backend/internal/store"
)

const (
	MinRating = 1
	MaxRating = 5

	maxIdempotencyKeyLen = 256
)

func validateRequest(req domain.BookingRequest) (domain.BookingRequest, error) {
	if req.PatientID <= 0 {
		return req, validationError("patient_id is required")
	}
	if req.ProviderID <= 0 {
		return req, validationError("provider_id is required")
	}
	if req.Date.IsZero() {
		return req, validationError("date is required")
	}
	label, err := domain.ParseTimeLabel(req.Time)
	if err != nil {
		return req, validationError("time must be HH:MM")
	}
	req.Time = label
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return req, validationError("idempotency_key too long")
	}
	return req, nil
}

// bookingKey scopes the client key to the patient, so two patients may pick the same
// key without colliding.
func bookingKey(req domain.BookingRequest) string {
	if req.IdempotencyKey == "" {
		return ""
	}
	name := "medslot:book:" + strconv.FormatInt(req.PatientID, 10) + ":" + req.IdempotencyKey
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func sameClaim(b domain.Booking, req domain.BookingRequest) bool {
	return b.PatientID == req.PatientID &&
		b.ProviderID == req.ProviderID &&
		b.Date == req.Date &&
		b.Time == req.Time
}

// Book accepts a claim on one unit. The ledger decides whether the unit is taken;
// removing it from the provider's offer is best effort. A request repeating an
// earlier idempotency key returns that booking unchanged.
func (s *Service) Book(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	req, err := validateRequest(req)
	if err != nil {
		return domain.Booking{}, err
	}
	key := bookingKey(req)

	var booked domain.Booking
	var offered bool
	err = s.mutate(ctx, func(st *domain.State) error {
		if id, ok := st.BookingKeys[key]; key != "" && ok {
			if prior, ok := st.Booking(id); ok {
				if !sameClaim(*prior, req) {
					return fmt.Errorf("%w: key already created booking %d", store.ErrIdempotencyConflict, id)
				}
				booked = prior.Clone()
				return errUnchanged
			}
		}

		provider, ok := st.Provider(req.ProviderID)
		if !ok {
			return notFound("provider", req.ProviderID)
		}
		if _, ok := st.Patient(req.PatientID); !ok {
			return notFound("patient", req.PatientID)
		}

		var conflict error
		if s.cfg.RequireAdvertisedSlot {
			conflict = domain.DetectConflictStrict(st.Bookings, provider, req)
		} else {
			conflict = domain.DetectConflict(st.Bookings, req)
		}
		if conflict != nil {
			return conflict
		}

		booked = domain.Booking{
			ID:         s.ids.Next(st.HasBooking),
			PatientID:  req.PatientID,
			ProviderID: req.ProviderID,
			Date:       req.Date,
			Time:       req.Time,
			Status:     domain.BookingStatusBooked,
			BookedAt:   s.clock.Now(),
		}
		st.Bookings = append(st.Bookings, booked)
		if key != "" {
			if st.BookingKeys == nil {
				st.BookingKeys = make(map[string]int64)
			}
			st.BookingKeys[key] = booked.ID
		}
		offered = provider.RemoveUnit(req.Date, req.Time)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		s.log.Info("booking replayed", slog.Int64("booking_id", booked.ID), slog.Int64("patient_id", booked.PatientID))
		return booked, nil
	}
	if err != nil {
		return domain.Booking{}, err
	}

	log := s.log.With(slog.Int64("booking_id", booked.ID))
	if !offered {
		log.Debug("booked unit was not on offer", slog.Int64("provider_id", booked.ProviderID))
	}
	log.Info("booking created",
		slog.Int64("patient_id", booked.PatientID),
		slog.Int64("provider_id", booked.ProviderID),
		slog.String("date", booked.Date.String()),
		slog.String("time", booked.Time),
	)
	s.publish(ctx, events.BookingEvent(events.TypeBookingCreated, booked, booked.BookedAt))
	return booked, nil
}

// Cancel moves a booked booking to cancelled and returns its unit to the provider's
// offer. Providers deleted since the booking get nothing back.
func (s *Service) Cancel(ctx context.Context, bookingID int64) (domain.Booking, error) {
	var out domain.Booking
	err := s.mutate(ctx, func(st *domain.State) error {
		b, err := transition(st, bookingID, domain.BookingStatusCancelled)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		b.CancelledAt = &now
		if p, ok := st.Provider(b.ProviderID); ok {
			p.AddUnit(b.Date, b.Time)
		}
		out = b.Clone()
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.log.Info("booking cancelled",
		slog.Int64("booking_id", out.ID),
		slog.Int64("provider_id", out.ProviderID),
		slog.String("date", out.Date.String()),
		slog.String("time", out.Time),
	)
	s.publish(ctx, events.BookingEvent(events.TypeBookingCancelled, out, *out.CancelledAt))
	return out, nil
}

// MarkDone completes a booked booking. The unit stays consumed.
func (s *Service) MarkDone(ctx context.Context, bookingID int64) (domain.Booking, error) {
	var out domain.Booking
	err := s.mutate(ctx, func(st *domain.State) error {
		b, err := transition(st, bookingID, domain.BookingStatusDone)
		if err != nil {
			return err
		}
		out = b.Clone()
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.log.Info("booking completed", slog.Int64("booking_id", out.ID))
	s.publish(ctx, events.BookingEvent(events.TypeBookingCompleted, out, s.clock.Now()))
	return out, nil
}

// Rate sets the rating on a booking in any status.
func (s *Service) Rate(ctx context.Context, bookingID int64, rating int) (domain.Booking, error) {
	if rating < MinRating || rating > MaxRating {
		return domain.Booking{}, validationError(fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}

	var out domain.Booking
	err := s.mutate(ctx, func(st *domain.State) error {
		b, ok := st.Booking(bookingID)
		if !ok {
			return notFound("booking", bookingID)
		}
		r := rating
		b.Rating = &r
		out = b.Clone()
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.log.Info("booking rated", slog.Int64("booking_id", out.ID), slog.Int("rating", rating))
	s.publish(ctx, events.BookingEvent(events.TypeBookingRated, out, s.clock.Now()))
	return out, nil
}

func transition(st *domain.State, bookingID int64, next domain.BookingStatus) (*domain.Booking, error) {
	b, ok := st.Booking(bookingID)
	if !ok {
		return nil, notFound("booking", bookingID)
	}
	if !b.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, bookingID, b.Status)
	}
	b.Status = next
	return b, nil
}
