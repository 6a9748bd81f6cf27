package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/union-registry/internal/model"
)

// RecentWindow is how far back "recent" registrations and departures reach.
const RecentWindow = 30 * 24 * time.Hour

// ReportStore is the read-only aggregate contract of the member store.
type ReportStore interface {
	CountAll(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status model.Status) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountEndedSince(ctx context.Context, since time.Time) (int64, error)
	GroupCount(ctx context.Context, field string) ([]model.GroupCount, error)
}

// ReportService builds the administrator dashboard.
type ReportService struct {
	store ReportStore
	now   func() time.Time
}

func NewReportService(store ReportStore) *ReportService {
	return &ReportService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Stats computes the membership counters and the company and department
// breakdowns.
func (s *ReportService) Stats(ctx context.Context, caller model.Caller) (model.Report, error) {
	if !caller.IsAdministrator() {
		return model.Report{}, ErrForbidden
	}
	since := s.now().Add(-RecentWindow)

	var (
		r   model.Report
		err error
	)
	if r.Stats.TotalMembers, err = s.store.CountAll(ctx); err != nil {
		return model.Report{}, fmt.Errorf("count members: %w", err)
	}
	if r.Stats.ActiveMembers, err = s.store.CountByStatus(ctx, model.StatusActive); err != nil {
		return model.Report{}, fmt.Errorf("count active: %w", err)
	}
	if r.Stats.InactiveMembers, err = s.store.CountByStatus(ctx, model.StatusInactive); err != nil {
		return model.Report{}, fmt.Errorf("count inactive: %w", err)
	}
	if r.Stats.RecentRegistrations, err = s.store.CountCreatedSince(ctx, since); err != nil {
		return model.Report{}, fmt.Errorf("count registrations: %w", err)
	}
	if r.Stats.RecentDepartures, err = s.store.CountEndedSince(ctx, since); err != nil {
		return model.Report{}, fmt.Errorf("count departures: %w", err)
	}
	if r.MembersByCompany, err = s.store.GroupCount(ctx, "company_name"); err != nil {
		return model.Report{}, fmt.Errorf("group by company: %w", err)
	}
	if r.MembersByDepartment, err = s.store.GroupCount(ctx, "department"); err != nil {
		return model.Report{}, fmt.Errorf("group by department: %w", err)
	}
	return r, nil
}
