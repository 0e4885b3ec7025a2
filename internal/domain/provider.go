package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const timeLabelLayout = "15:04"

var ErrInvalidTimeLabel = errors.New("invalid time label")

// ParseTimeLabel validates a wall-clock label and returns its canonical "HH:MM" form.
// Canonical labels sort lexically in time order.
func ParseTimeLabel(s string) (string, error) {
	t, err := time.Parse(timeLabelLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeLabel, s)
	}
	return t.Format(timeLabelLayout), nil
}

// DaySlots is the set of still-bookable time labels of one provider on one day.
type DaySlots struct {
	Date  Date     `json:"date"`
	Slots []string `json:"slots"`
}

// Provider owns its availability. The slice is ordered by date, holds at most one
// DaySlots per date and never holds an empty DaySlots; only the methods in this file
// mutate it.
type Provider struct {
	ID        int64
	Name      string
	Email     string
	Specialty string
	Phone     string
	Bio       string
	Rating    float64

	availability []DaySlots
}

// Availability returns a copy of the provider's offered days.
func (p *Provider) Availability() []DaySlots {
	out := make([]DaySlots, len(p.availability))
	for i, ds := range p.availability {
		out[i] = DaySlots{Date: ds.Date, Slots: slices.Clone(ds.Slots)}
	}
	return out
}

func (p *Provider) DayCount() int {
	return len(p.availability)
}

func (p *Provider) HasDay(date Date) bool {
	_, ok := p.dayIndex(date)
	return ok
}

func (p *Provider) HasUnit(date Date, label string) bool {
	i, ok := p.dayIndex(date)
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(p.availability[i].Slots, label)
	return found
}

// AddUnit makes (date, label) bookable. It reports false when the unit was already
// offered.
func (p *Provider) AddUnit(date Date, label string) bool {
	i, ok := p.dayIndex(date)
	if !ok {
		p.availability = slices.Insert(p.availability, i, DaySlots{Date: date, Slots: []string{label}})
		return true
	}
	slots := p.availability[i].Slots
	j, found := slices.BinarySearch(slots, label)
	if found {
		return false
	}
	p.availability[i].Slots = slices.Insert(slots, j, label)
	return true
}

// RemoveUnit withdraws (date, label). The day is dropped once its last label goes.
// It reports false when the unit was not offered.
func (p *Provider) RemoveUnit(date Date, label string) bool {
	i, ok := p.dayIndex(date)
	if !ok {
		return false
	}
	slots := p.availability[i].Slots
	j, found := slices.BinarySearch(slots, label)
	if !found {
		return false
	}
	slots = slices.Delete(slots, j, j+1)
	if len(slots) == 0 {
		p.availability = slices.Delete(p.availability, i, i+1)
		return true
	}
	p.availability[i].Slots = slots
	return true
}

// discardBefore drops every day strictly before cutoff and returns how many went.
func (p *Provider) discardBefore(cutoff Date) int {
	keep := p.availability[:0]
	dropped := 0
	for _, ds := range p.availability {
		if ds.Date.Before(cutoff) {
			dropped++
			continue
		}
		keep = append(keep, ds)
	}
	clear(p.availability[len(keep):])
	p.availability = keep
	return dropped
}

// dayIndex returns the position of date, or the insertion point when absent.
func (p *Provider) dayIndex(date Date) (int, bool) {
	return slices.BinarySearchFunc(p.availability, date, func(ds DaySlots, d Date) int {
		return ds.Date.Compare(d)
	})
}

func (p Provider) Clone() Provider {
	out := p
	out.availability = p.Availability()
	return out
}

type providerJSON struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Specialty    string     `json:"specialty,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	Rating       float64    `json:"rating"`
	Availability []DaySlots `json:"availability"`
}

func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(providerJSON{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		Specialty:    p.Specialty,
		Phone:        p.Phone,
		Bio:          p.Bio,
		Rating:       p.Rating,
		Availability: p.Availability(),
	})
}

// UnmarshalJSON rebuilds availability through AddUnit, so documents with unsorted,
// duplicated or empty days load into a valid shape.
func (p *Provider) UnmarshalJSON(b []byte) error {
	var raw providerJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Provider{
		ID:        raw.ID,
		Name:      raw.Name,
		Email:     raw.Email,
		Specialty: raw.Specialty,
		Phone:     raw.Phone,
		Bio:       raw.Bio,
		Rating:    raw.Rating,
	}
	for _, ds := range raw.Availability {
		if ds.Date.IsZero() {
			return fmt.Errorf("provider %d: availability day without date", raw.ID)
		}
		for _, s := range ds.Slots {
			label, err := ParseTimeLabel(s)
			if err != nil {
				return fmt.Errorf("provider %d: %w", raw.ID, err)
			}
			out.AddUnit(ds.Date, label)
		}
	}
	*p = out
	return nil
}

// ProviderUpdate carries the profile fields to change; nil fields are left alone.
type ProviderUpdate struct {
	Name      *string
	Email     *string
	Specialty *string
	Phone     *string
	Bio       *string
	Rating    *float64
}

func (p *Provider) Apply(u ProviderUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Email != nil {
		p.Email = strings.TrimSpace(*u.Email)
	}
	if u.Specialty != nil {
		p.Specialty = *u.Specialty
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.Rating != nil {
		p.Rating = *u.Rating
	}
}
