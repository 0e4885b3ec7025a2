package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"medslot/backend/internal/domain"
)

type SlotInput struct {
	ProviderID int64
	Date       domain.Date
	Time       string
}

func validateSlot(in SlotInput) (SlotInput, error) {
	if in.ProviderID <= 0 {
		return in, validationError("provider_id is required")
	}
	if in.Date.IsZero() {
		return in, validationError("date is required")
	}
	label, err := domain.ParseTimeLabel(in.Time)
	if err != nil {
		return in, validationError("time must be HH:MM")
	}
	in.Time = label
	return in, nil
}

// AddTimeSlot offers one more unit. A unit that a booked booking holds cannot be
// offered again until that booking is cancelled.
func (s *Service) AddTimeSlot(ctx context.Context, in SlotInput) (bool, error) {
	in, err := validateSlot(in)
	if err != nil {
		return false, err
	}

	var added bool
	err = s.mutate(ctx, func(st *domain.State) error {
		p, ok := st.Provider(in.ProviderID)
		if !ok {
			return notFound("provider", in.ProviderID)
		}
		if st.UnitHeld(in.ProviderID, in.Date, in.Time) {
			return fmt.Errorf("%w: provider %d %s %s", ErrSlotHeld, in.ProviderID, in.Date, in.Time)
		}
		added = p.AddUnit(in.Date, in.Time)
		if !added {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.log.Info("time slot added", slog.Int64("provider_id", in.ProviderID), slog.String("date", in.Date.String()), slog.String("time", in.Time))
	return true, nil
}

// RemoveTimeSlot withdraws an offered unit. It reports false when the unit was not
// on offer.
func (s *Service) RemoveTimeSlot(ctx context.Context, in SlotInput) (bool, error) {
	in, err := validateSlot(in)
	if err != nil {
		return false, err
	}

	err = s.mutate(ctx, func(st *domain.State) error {
		p, ok := st.Provider(in.ProviderID)
		if !ok {
			return notFound("provider", in.ProviderID)
		}
		if !p.RemoveUnit(in.Date, in.Time) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.log.Info("time slot removed", slog.Int64("provider_id", in.ProviderID), slog.String("date", in.Date.String()), slog.String("time", in.Time))
	return true, nil
}

type ProviderInput struct {
	Name      string
	Email     string
	Specialty string
	Phone     string
	Bio       string
}

// AddProvider registers a provider with an empty offer and no rating.
func (s *Service) AddProvider(ctx context.Context, in ProviderInput) (domain.Provider, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Provider{}, validationError("name is required")
	}

	var out domain.Provider
	err := s.mutate(ctx, func(st *domain.State) error {
		p := domain.Provider{
			ID:        st.NextProviderID(),
			Name:      name,
			Email:     strings.TrimSpace(in.Email),
			Specialty: in.Specialty,
			Phone:     in.Phone,
			Bio:       in.Bio,
		}
		st.Providers = append(st.Providers, p)
		st.LastProviderID = p.ID
		out = p.Clone()
		return nil
	})
	if err != nil {
		return domain.Provider{}, err
	}

	s.log.Info("provider added", slog.Int64("provider_id", out.ID))
	return out, nil
}

// UpdateProvider changes profile fields only; the offer is edited through time slots.
func (s *Service) UpdateProvider(ctx context.Context, id int64, u domain.ProviderUpdate) (domain.Provider, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return domain.Provider{}, validationError("name must not be empty")
	}
	if u.Rating != nil && (*u.Rating < 0 || *u.Rating > MaxRating) {
		return domain.Provider{}, validationError(fmt.Sprintf("rating must be between 0 and %d", MaxRating))
	}

	var out domain.Provider
	err := s.mutate(ctx, func(st *domain.State) error {
		p, ok := st.Provider(id)
		if !ok {
			return notFound("provider", id)
		}
		p.Apply(u)
		out = p.Clone()
		return nil
	})
	if err != nil {
		return domain.Provider{}, err
	}

	s.log.Info("provider updated", slog.Int64("provider_id", id))
	return out, nil
}

// DeleteProvider removes the provider. Its bookings stay in the ledger.
func (s *Service) DeleteProvider(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(st *domain.State) error {
		if !st.RemoveProvider(id) {
			return notFound("provider", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("provider deleted", slog.Int64("provider_id", id))
	return nil
}

type PatientInput struct {
	Name   string
	Email  string
	Phone  string
	Gender string
	DOB    *domain.Date
}

func (s *Service) RegisterPatient(ctx context.Context, in PatientInput) (domain.Patient, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Patient{}, validationError("name is required")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return domain.Patient{}, validationError("email is required")
	}

	var out domain.Patient
	err := s.mutate(ctx, func(st *domain.State) error {
		if emailTaken(st, email, 0) {
			return ErrEmailTaken
		}
		p := domain.Patient{
			ID:     st.NextPatientID(),
			Name:   name,
			Email:  email,
			Phone:  in.Phone,
			Gender: in.Gender,
		}
		if in.DOB != nil {
			dob := *in.DOB
			p.DOB = &dob
		}
		st.Patients = append(st.Patients, p)
		out = p
		return nil
	})
	if err != nil {
		return domain.Patient{}, err
	}

	s.log.Info("patient registered", slog.Int64("patient_id", out.ID))
	return out, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id int64, u domain.PatientUpdate) (domain.Patient, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return domain.Patient{}, validationError("name must not be empty")
	}
	if u.Email != nil && strings.TrimSpace(*u.Email) == "" {
		return domain.Patient{}, validationError("email must not be empty")
	}

	var out domain.Patient
	err := s.mutate(ctx, func(st *domain.State) error {
		p, ok := st.Patient(id)
		if !ok {
			return notFound("patient", id)
		}
		if u.Email != nil && emailTaken(st, *u.Email, id) {
			return ErrEmailTaken
		}
		p.Apply(u)
		out = *p
		if p.DOB != nil {
			dob := *p.DOB
			out.DOB = &dob
		}
		return nil
	})
	if err != nil {
		return domain.Patient{}, err
	}

	s.log.Info("patient updated", slog.Int64("patient_id", id))
	return out, nil
}

func emailTaken(st *domain.State, email string, exceptID int64) bool {
	for _, p := range st.Patients {
		if p.ID != exceptID && domain.SameEmail(p.Email, email) {
			return true
		}
	}
	return false
}
