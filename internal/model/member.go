package model

import "time"

// Status is the derived membership state of a Member.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is one of the two known statuses.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// DateLayout is the wire and storage format of membership dates.
const DateLayout = "2006-01-02"

// Member represents a union membership record as stored in the
// `members` table.  It is the only core entity of the registry.
//
// Fields:
//  ID                  – internal primary key, assigned by the database.
//  MemberID            – public identifier SP<year><seq>, assigned once at creation.
//  FullName            – member's full name.
//  EmployeeID          – employer-issued identification number (unique).
//  CompanyName         – employer name.
//  Department          – department within the company.
//  PhoneNumber         – contact number.
//  Email               – contact email (unique).
//  MembershipStartDate – first day of membership.
//  MembershipEndDate   – last day of membership; nil while the member is active.
//  Status              – derived from MembershipEndDate, see DeriveStatus.
//  CreatedAt           – timestamp of creation.
//  UpdatedAt           – timestamp of last update.
type Member struct {
	ID                  uint64     // members.id
	MemberID            string     // members.member_id
	FullName            string     // members.full_name
	EmployeeID          string     // members.employee_id
	CompanyName         string     // members.company_name
	Department          string     // members.department
	PhoneNumber         string     // members.phone_number
	Email               string     // members.email
	MembershipStartDate time.Time  // members.membership_start_date
	MembershipEndDate   *time.Time // members.membership_end_date (nullable)
	Status              Status     // members.status
	CreatedAt           time.Time  // members.created_at
	UpdatedAt           time.Time  // members.updated_at
}

// DeriveStatus is the single source of truth for a member's status: a
// member without an end date is active, any end date makes it inactive.
func DeriveStatus(end *time.Time) Status {
	if end == nil {
		return StatusActive
	}
	return StatusInactive
}

// ApplyLifecycle overwrites Status from the end date.  Every write path
// calls it before the record reaches the store.
func (m *Member) ApplyLifecycle() {
	m.Status = DeriveStatus(m.MembershipEndDate)
}

// MemberResponse is the JSON representation returned by the API.
type MemberResponse struct {
	ID                  uint64  `json:"id"`
	MemberID            string  `json:"member_id"`
	FullName            string  `json:"full_name"`
	EmployeeID          string  `json:"employee_id"`
	CompanyName         string  `json:"company_name"`
	Department          string  `json:"department"`
	PhoneNumber         string  `json:"phone_number"`
	Email               string  `json:"email"`
	MembershipStartDate string  `json:"membership_start_date"`
	MembershipEndDate   *string `json:"membership_end_date"`
	Status              Status  `json:"status"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

// ToResponse converts a Member to its API representation.
func (m *Member) ToResponse() *MemberResponse {
	resp := &MemberResponse{
		ID:                  m.ID,
		MemberID:            m.MemberID,
		FullName:            m.FullName,
		EmployeeID:          m.EmployeeID,
		CompanyName:         m.CompanyName,
		Department:          m.Department,
		PhoneNumber:         m.PhoneNumber,
		Email:               m.Email,
		MembershipStartDate: m.MembershipStartDate.Format(DateLayout),
		Status:              m.Status,
		CreatedAt:           m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.MembershipEndDate != nil {
		end := m.MembershipEndDate.Format(DateLayout)
		resp.MembershipEndDate = &end
	}
	return resp
}
