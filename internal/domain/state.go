package domain

import (
	"fmt"
	"maps"
	"slices"
)

// State is the whole persisted aggregate. The snapshot document is this struct's
// JSON form, keyed by collection name.
type State struct {
	Providers []Provider `json:"providers"`
	Patients  []Patient  `json:"patients"`
	Bookings  []Booking  `json:"bookings"`

	// LastProviderID is the highest provider id ever issued.
	LastProviderID int64 `json:"lastProviderId,omitempty"`
	// BookingKeys maps a derived request key to the booking it created.
	BookingKeys map[string]int64 `json:"bookingKeys,omitempty"`
}

func (s State) Clone() State {
	out := State{
		Providers: make([]Provider, len(s.Providers)),
		Patients:  make([]Patient, len(s.Patients)),
		Bookings:  make([]Booking, len(s.Bookings)),

		LastProviderID: s.LastProviderID,
		BookingKeys:    maps.Clone(s.BookingKeys),
	}
	for i, p := range s.Providers {
		out.Providers[i] = p.Clone()
	}
	for i, p := range s.Patients {
		if p.DOB != nil {
			dob := *p.DOB
			p.DOB = &dob
		}
		out.Patients[i] = p
	}
	for i, b := range s.Bookings {
		out.Bookings[i] = b.Clone()
	}
	return out
}

func (s *State) Provider(id int64) (*Provider, bool) {
	i := slices.IndexFunc(s.Providers, func(p Provider) bool { return p.ID == id })
	if i < 0 {
		return nil, false
	}
	return &s.Providers[i], true
}

func (s *State) Patient(id int64) (*Patient, bool) {
	i := slices.IndexFunc(s.Patients, func(p Patient) bool { return p.ID == id })
	if i < 0 {
		return nil, false
	}
	return &s.Patients[i], true
}

func (s *State) Booking(id int64) (*Booking, bool) {
	i := slices.IndexFunc(s.Bookings, func(b Booking) bool { return b.ID == id })
	if i < 0 {
		return nil, false
	}
	return &s.Bookings[i], true
}

func (s *State) HasBooking(id int64) bool {
	_, ok := s.Booking(id)
	return ok
}

// NextProviderID is one past the highest provider id ever issued, counting ids that
// only the ledger still references. A deleted provider's id is never handed out again.
func (s *State) NextProviderID() int64 {
	max := s.LastProviderID
	for _, p := range s.Providers {
		if p.ID > max {
			max = p.ID
		}
	}
	for _, b := range s.Bookings {
		if b.ProviderID > max {
			max = b.ProviderID
		}
	}
	return max + 1
}

func (s *State) NextPatientID() int64 {
	var max int64
	for _, p := range s.Patients {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

func (s *State) RemoveProvider(id int64) bool {
	i := slices.IndexFunc(s.Providers, func(p Provider) bool { return p.ID == id })
	if i < 0 {
		return false
	}
	s.Providers = slices.Delete(s.Providers, i, i+1)
	return true
}

// UnitHeld reports whether a booked booking currently claims the unit.
func (s *State) UnitHeld(providerID int64, date Date, label string) bool {
	return slices.ContainsFunc(s.Bookings, func(b Booking) bool {
		return b.Holds(providerID, date, label)
	})
}

// CheckPartition verifies that no unit is both offered and held by a booked booking,
// and that no patient holds two booked bookings at the same instant.
func (s *State) CheckPartition() error {
	type instant struct {
		patient int64
		date    Date
		time    string
	}
	seen := make(map[instant]int64)
	for _, b := range s.Bookings {
		if b.Status != BookingStatusBooked {
			continue
		}
		key := instant{patient: b.PatientID, date: b.Date, time: b.Time}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("bookings %d and %d double-book patient %d at %s %s", other, b.ID, b.PatientID, b.Date, b.Time)
		}
		seen[key] = b.ID
		if p, ok := s.Provider(b.ProviderID); ok && p.HasUnit(b.Date, b.Time) {
			return fmt.Errorf("booking %d holds %s %s but provider %d still offers it", b.ID, b.Date, b.Time, b.ProviderID)
		}
	}
	return nil
}
