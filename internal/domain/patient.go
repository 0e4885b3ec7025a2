package domain

import "strings"

type Patient struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Gender string `json:"gender,omitempty"`
	DOB    *Date  `json:"dob,omitempty"`
}

// SameEmail compares addresses the way registration does: trimmed, case-insensitive.
func SameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type PatientUpdate struct {
	Name   *string
	Email  *string
	Phone  *string
	Gender *string
	DOB    *Date
}

func (p *Patient) Apply(u PatientUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Email != nil {
		p.Email = strings.TrimSpace(*u.Email)
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.DOB != nil {
		dob := *u.DOB
		p.DOB = &dob
	}
}

// Role tags the caller supplied by the session collaborator. The core only reads it.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID   int64
	Role Role
}
