package domain

// SeedState is the bundled starter data used when no snapshot exists yet. Offered
// days are relative to today so a fresh install always has something to book.
func SeedState(today Date) State {
	day := func(n int) Date { return today.AddDays(n + 1) }

	type offer struct {
		day   int
		slots []string
	}
	seed := []struct {
		provider Provider
		offers   []offer
	}{
		{
			provider: Provider{ID: 1, Name: "Dr. Asser Fouad", Specialty: "Cardiology", Phone: "555-0201", Rating: 4.8,
				Bio: "Experienced cardiologist with 15 years of practice."},
			offers: []offer{
				{0, []string{"09:00", "10:00", "11:00", "14:00", "15:00"}},
				{1, []string{"09:00", "10:00", "13:00", "14:00"}},
				{3, []string{"10:00", "11:00", "15:00", "16:00"}},
			},
		},
		{
			provider: Provider{ID: 2, Name: "Dr. Noor Ihab", Specialty: "Dermatology", Phone: "555-0202", Rating: 4.9,
				Bio: "Board-certified dermatologist specializing in cosmetic procedures."},
			offers: []offer{
				{0, []string{"10:00", "11:00", "14:00", "15:00", "16:00"}},
				{2, []string{"09:00", "10:00", "11:00"}},
			},
		},
		{
			provider: Provider{ID: 3, Name: "Dr. Mohamed Mostafa", Specialty: "Pediatrics", Phone: "555-0203", Rating: 4.7,
				Bio: "Pediatrician with a passion for children's health."},
			offers: []offer{
				{1, []string{"09:00", "10:00", "11:00", "13:00", "14:00"}},
				{3, []string{"09:00", "10:00", "15:00"}},
			},
		},
		{
			provider: Provider{ID: 4, Name: "Dr. Mohannad Hamouda", Specialty: "Orthopedics", Phone: "555-0204", Rating: 4.6,
				Bio: "Orthopedic surgeon with expertise in sports injuries."},
			offers: []offer{
				{0, []string{"09:00", "13:00", "14:00"}},
				{2, []string{"10:00", "11:00", "14:00", "15:00"}},
			},
		},
	}

	var s State
	for _, entry := range seed {
		p := entry.provider
		for _, o := range entry.offers {
			for _, label := range o.slots {
				p.AddUnit(day(o.day), label)
			}
		}
		s.Providers = append(s.Providers, p)
	}

	dob := NewDate(1990, 5, 15)
	s.Patients = []Patient{
		{ID: 1, Name: "John Doe", Email: "patient@test.com", Phone: "555-0101", Gender: "male", DOB: &dob},
	}
	s.Bookings = []Booking{}
	return s
}
