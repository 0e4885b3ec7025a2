package domain

import "errors"

var (
	ErrDuplicateBooking    = errors.New("duplicate booking with this provider")
	ErrPatientDoubleBooked = errors.New("patient already has a conflicting booking")
	ErrSlotTaken           = errors.New("slot already booked by another patient")
	ErrSlotUnavailable     = errors.New("slot is not offered by the provider")
)

// DetectConflict checks req against the booked rows of the ledger, in order:
// same patient and provider, same patient at that instant, then any other patient
// holding the unit. The ledger is the authority on whether a unit is taken.
func DetectConflict(ledger []Booking, req BookingRequest) error {
	for _, b := range ledger {
		if b.Status != BookingStatusBooked {
			continue
		}
		if b.PatientID == req.PatientID && b.ProviderID == req.ProviderID && b.Date == req.Date && b.Time == req.Time {
			return ErrDuplicateBooking
		}
	}
	for _, b := range ledger {
		if b.Status != BookingStatusBooked {
			continue
		}
		if b.PatientID == req.PatientID && b.Date == req.Date && b.Time == req.Time {
			return ErrPatientDoubleBooked
		}
	}
	for _, b := range ledger {
		if b.Holds(req.ProviderID, req.Date, req.Time) {
			return ErrSlotTaken
		}
	}
	return nil
}

// DetectConflictStrict also requires the unit to be on offer right now.
func DetectConflictStrict(ledger []Booking, provider *Provider, req BookingRequest) error {
	if err := DetectConflict(ledger, req); err != nil {
		return err
	}
	if provider == nil || !provider.HasUnit(req.Date, req.Time) {
		return ErrSlotUnavailable
	}
	return nil
}
