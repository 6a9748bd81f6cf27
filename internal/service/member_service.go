package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/queue"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/utils"
)

// MemberStore is the persistence contract the member service drives.
// *repository.MemberRepo satisfies it.
type MemberStore interface {
	Create(ctx context.Context, m *model.Member, year int) error
	GetByID(ctx context.Context, id uint64) (*model.Member, error)
	Update(ctx context.Context, m *model.Member) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, f repository.MemberFilter) ([]*model.Member, int64, error)
	DistinctValues(ctx context.Context, field string) ([]string, error)
	ExistsByField(ctx context.Context, field, value string, excludeID uint64) (bool, error)
}

// FilterOptions are the values offered for the company and department
// list filters.
type FilterOptions struct {
	Companies   []string `json:"companies"`
	Departments []string `json:"departments"`
}

// MemberPage is one page of a member listing.
type MemberPage struct {
	Items    []*model.Member
	Total    int64
	Page     int
	PageSize int
	LastPage int
}

// MemberService applies authorization, validation and the lifecycle policy
// before any change reaches the store.
type MemberService struct {
	store  MemberStore
	events EventPublisher
	logger *logrus.Logger
	now    func() time.Time
}

// NewMemberService wires a MemberService.  events may be nil, in which
// case lifecycle events are dropped.
func NewMemberService(store MemberStore, events EventPublisher, logger *logrus.Logger) *MemberService {
	if events == nil {
		events = NopPublisher{}
	}
	return &MemberService{
		store:  store,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// linkedMember returns the member id a member-role caller may act on.
// Accounts without a member link can do nothing.
func linkedMember(caller model.Caller) (uint64, error) {
	if !caller.IsMember() || caller.MemberRef == nil {
		return 0, ErrForbidden
	}
	return *caller.MemberRef, nil
}

// authorizeRecord allows administrators any record and member-role callers
// only their own.
func authorizeRecord(caller model.Caller, id uint64) error {
	if caller.IsAdministrator() {
		return nil
	}
	ref, err := linkedMember(caller)
	if err != nil {
		return err
	}
	if ref != id {
		return ErrForbidden
	}
	return nil
}

// Create registers a new member and assigns its member_id.
func (s *MemberService) Create(ctx context.Context, caller model.Caller, in MemberInput) (*model.Member, error) {
	if !caller.IsAdministrator() {
		return nil, ErrForbidden
	}
	v, err := s.validateMember(ctx, &in, 0)
	if err != nil {
		return nil, err
	}

	m := &model.Member{
		FullName:            in.FullName,
		EmployeeID:          in.EmployeeID,
		CompanyName:         in.CompanyName,
		Department:          in.Department,
		PhoneNumber:         in.PhoneNumber,
		Email:               in.Email,
		MembershipStartDate: v.start,
		MembershipEndDate:   v.end,
	}
	m.ApplyLifecycle()

	now := s.now()
	if err := s.store.Create(ctx, m, now.Year()); err != nil {
		return nil, s.storeWriteError("create member", err)
	}

	s.logger.WithFields(logrus.Fields{
		"operation":  "CreateMember",
		"member_id":  m.MemberID,
		"account_id": caller.AccountID,
	}).Info("member registered")
	s.publish(ctx, queue.EventMemberRegistered, m, now)
	return m, nil
}

// storeWriteError turns store failures of a create or update into the
// service error kinds.  A duplicate key that slipped past the pre-check
// (a concurrent writer) is reported like any other uniqueness failure.
func (s *MemberService) storeWriteError(op string, err error) error {
	var dup *repository.DuplicateKeyError
	switch {
	case errors.As(err, &dup):
		verr := newValidationError()
		verr.addDuplicate(dup.Field)
		return verr
	case errors.Is(err, repository.ErrMemberNotFound):
		return err
	case errors.Is(err, repository.ErrMemberIDConflict),
		errors.Is(err, utils.ErrSequenceExhausted),
		errors.Is(err, utils.ErrMalformedMemberID):
		s.logger.WithError(err).WithField("operation", op).Error("member id assignment failed")
		return integrity(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Get returns one member.  Member-role callers may only read their own
// record.
func (s *MemberService) Get(ctx context.Context, caller model.Caller, id uint64) (*model.Member, error) {
	if err := authorizeRecord(caller, id); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// List returns a filtered page of members for administrators.  For
// member-role callers it ignores the filter and returns a single-item page
// holding their own record.
func (s *MemberService) List(ctx context.Context, caller model.Caller, f repository.MemberFilter) (MemberPage, error) {
	if !caller.IsAdministrator() {
		ref, err := linkedMember(caller)
		if err != nil {
			return MemberPage{}, err
		}
		m, err := s.store.GetByID(ctx, ref)
		if err != nil {
			return MemberPage{}, err
		}
		return MemberPage{Items: []*model.Member{m}, Total: 1, Page: 1, PageSize: repository.MemberPageSize, LastPage: 1}, nil
	}

	if f.Status != "" && !model.Status(f.Status).Valid() {
		verr := newValidationError()
		verr.add("status", "must be active or inactive")
		return MemberPage{}, verr
	}
	if f.Page < 1 {
		f.Page = 1
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return MemberPage{}, fmt.Errorf("list members: %w", err)
	}
	last := int((total + repository.MemberPageSize - 1) / repository.MemberPageSize)
	if last < 1 {
		last = 1
	}
	return MemberPage{Items: items, Total: total, Page: f.Page, PageSize: repository.MemberPageSize, LastPage: last}, nil
}

// FilterOptions returns the distinct companies and departments.
func (s *MemberService) FilterOptions(ctx context.Context, caller model.Caller) (FilterOptions, error) {
	if !caller.IsAdministrator() {
		return FilterOptions{}, ErrForbidden
	}
	companies, err := s.store.DistinctValues(ctx, "company_name")
	if err != nil {
		return FilterOptions{}, fmt.Errorf("distinct companies: %w", err)
	}
	departments, err := s.store.DistinctValues(ctx, "department")
	if err != nil {
		return FilterOptions{}, fmt.Errorf("distinct departments: %w", err)
	}
	return FilterOptions{Companies: companies, Departments: departments}, nil
}

// Update replaces the writable fields of a member.  A member-role caller
// cannot change the membership end date; the stored value is kept and
// whatever was submitted is ignored.
func (s *MemberService) Update(ctx context.Context, caller model.Caller, id uint64, in MemberInput) (*model.Member, error) {
	if err := authorizeRecord(caller, id); err != nil {
		return nil, err
	}
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.IsAdministrator() {
		in.MembershipEndDate = nil
		if existing.MembershipEndDate != nil {
			end := existing.MembershipEndDate.Format(model.DateLayout)
			in.MembershipEndDate = &end
		}
	}

	v, err := s.validateMember(ctx, &in, id)
	if err != nil {
		return nil, err
	}

	wasActive := existing.Status == model.StatusActive
	m := *existing
	m.FullName = in.FullName
	m.EmployeeID = in.EmployeeID
	m.CompanyName = in.CompanyName
	m.Department = in.Department
	m.PhoneNumber = in.PhoneNumber
	m.Email = in.Email
	m.MembershipStartDate = v.start
	m.MembershipEndDate = v.end
	m.ApplyLifecycle()

	if err := s.store.Update(ctx, &m); err != nil {
		return nil, s.storeWriteError("update member", err)
	}

	s.logger.WithFields(logrus.Fields{
		"operation":  "UpdateMember",
		"member_id":  m.MemberID,
		"account_id": caller.AccountID,
		"status":     m.Status,
	}).Info("member updated")
	if wasActive && m.Status == model.StatusInactive {
		s.publish(ctx, queue.EventMemberDeactivated, &m, s.now())
	}
	return &m, nil
}

// Delete permanently removes a member.  Administrators only.
func (s *MemberService) Delete(ctx context.Context, caller model.Caller, id uint64) error {
	if !caller.IsAdministrator() {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"operation":  "DeleteMember",
		"id":         id,
		"account_id": caller.AccountID,
	}).Info("member deleted")
	return nil
}

// publish sends a lifecycle event.  Failures never fail the request.
func (s *MemberService) publish(ctx context.Context, eventType string, m *model.Member, at time.Time) {
	ev := queue.NewMemberEvent(eventType, m, at)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":  ev.EventID,
			"type":      eventType,
			"member_id": m.MemberID,
		}).Warn("publish member event failed")
	}
}
