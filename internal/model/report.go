package model

// GroupCount is one row of a group-by breakdown.
type GroupCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ReportStats holds the headline membership counters.
type ReportStats struct {
	TotalMembers        int64 `json:"total_members"`
	ActiveMembers       int64 `json:"active_members"`
	InactiveMembers     int64 `json:"inactive_members"`
	RecentRegistrations int64 `json:"recent_registrations"`
	RecentDepartures    int64 `json:"recent_departures"`
}

// Report is the dashboard payload returned to administrators.
type Report struct {
	Stats               ReportStats  `json:"stats"`
	MembersByCompany    []GroupCount `json:"members_by_company"`
	MembersByDepartment []GroupCount `json:"members_by_department"`
}
