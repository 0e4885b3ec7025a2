package domain

import "slices"

// WindowPolicy controls how far ahead each provider's offer is kept populated.
type WindowPolicy struct {
	MinDays      int
	MaxDays      int
	HorizonDays  int
	DefaultSlots []string
}

func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		MinDays:      3,
		MaxDays:      5,
		HorizonDays:  7,
		DefaultSlots: []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00"},
	}
}

type ProviderWindowChange struct {
	ProviderID  int64
	DaysDropped int
	DaysAdded   []Date
}

type WindowReport struct {
	Today   Date
	Changes []ProviderWindowChange
}

func (r WindowReport) Changed() bool {
	return len(r.Changes) > 0
}

// MaintainAvailability discards past days and, for providers left with fewer than
// MinDays, fills dates from tomorrow through the horizon with the default slots
// until MaxDays is reached, skipping units a booked booking holds. Past capacity is
// discarded, not moved. Running it twice with the same today is a no-op the second
// time.
func MaintainAvailability(s *State, today Date, policy WindowPolicy) WindowReport {
	report := WindowReport{Today: today}
	for i := range s.Providers {
		p := &s.Providers[i]
		change := ProviderWindowChange{ProviderID: p.ID}
		change.DaysDropped = p.discardBefore(today)

		if p.DayCount() < policy.MinDays && len(policy.DefaultSlots) > 0 {
			for n := 1; n <= policy.HorizonDays && p.DayCount() < policy.MaxDays; n++ {
				candidate := today.AddDays(n)
				if p.HasDay(candidate) {
					continue
				}
				added := false
				for _, label := range policy.DefaultSlots {
					// a drained day may still have booked units; they stay claimed
					if s.UnitHeld(p.ID, candidate, label) {
						continue
					}
					added = p.AddUnit(candidate, label) || added
				}
				if added {
					change.DaysAdded = append(change.DaysAdded, candidate)
				}
			}
		}

		if change.DaysDropped > 0 || len(change.DaysAdded) > 0 {
			report.Changes = append(report.Changes, change)
		}
	}
	return report
}

// Normalize returns the policy's template as canonical sorted labels.
func (p WindowPolicy) Normalize() (WindowPolicy, error) {
	labels := make([]string, 0, len(p.DefaultSlots))
	for _, s := range p.DefaultSlots {
		label, err := ParseTimeLabel(s)
		if err != nil {
			return WindowPolicy{}, err
		}
		labels = append(labels, label)
	}
	slices.Sort(labels)
	p.DefaultSlots = slices.Compact(labels)
	return p, nil
}
