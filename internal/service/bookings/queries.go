package bookings

import (
	"medslot/backend/internal/domain"
)

type Statistics struct {
	TotalProviders int
	TotalPatients  int
	TotalBookings  int
	TodayBookings  int
}

func (s *Service) Provider(id int64) (domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.Provider(id)
	if !ok {
		return domain.Provider{}, notFound("provider", id)
	}
	return p.Clone(), nil
}

func (s *Service) Providers() []domain.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Provider, 0, len(s.state.Providers))
	for _, p := range s.state.Providers {
		out = append(out, p.Clone())
	}
	return out
}

func (s *Service) Patient(id int64) (domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.Patient(id)
	if !ok {
		return domain.Patient{}, notFound("patient", id)
	}
	out := *p
	if p.DOB != nil {
		dob := *p.DOB
		out.DOB = &dob
	}
	return out, nil
}

func (s *Service) Booking(id int64) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.state.Booking(id)
	if !ok {
		return domain.Booking{}, notFound("booking", id)
	}
	return b.Clone(), nil
}

// Availability returns the provider's offered units, dates ascending.
func (s *Service) Availability(providerID int64) ([]domain.DaySlots, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.Provider(providerID)
	if !ok {
		return nil, notFound("provider", providerID)
	}
	return p.Availability(), nil
}

func (s *Service) PatientBookings(patientID int64) []domain.Booking {
	return s.filterBookings(func(b domain.Booking) bool { return b.PatientID == patientID })
}

func (s *Service) ProviderBookings(providerID int64) []domain.Booking {
	return s.filterBookings(func(b domain.Booking) bool { return b.ProviderID == providerID })
}

// TodayBookings lists the provider's bookings dated today in every status.
func (s *Service) TodayBookings(providerID int64) []domain.Booking {
	today := s.clock.Today()
	return s.filterBookings(func(b domain.Booking) bool {
		return b.ProviderID == providerID && b.Date == today
	})
}

func (s *Service) Statistics() Statistics {
	today := s.clock.Today()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Statistics{
		TotalProviders: len(s.state.Providers),
		TotalPatients:  len(s.state.Patients),
		TotalBookings:  len(s.state.Bookings),
	}
	for _, b := range s.state.Bookings {
		if b.Date == today {
			st.TodayBookings++
		}
	}
	return st
}

func (s *Service) filterBookings(keep func(domain.Booking) bool) []domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Booking
	for _, b := range s.state.Bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	return out
}
