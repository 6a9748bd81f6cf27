package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/queue"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/utils"
)

// memStore is an in-memory MemberStore and ReportStore.  A single mutex
// plays the role of the row lock taken by the MySQL store.
type memStore struct {
	mu        sync.Mutex
	rows      map[uint64]*model.Member
	lastID    uint64
	clock     func() time.Time
	createErr error
}

func newMemStore(clock func() time.Time) *memStore {
	return &memStore{rows: map[uint64]*model.Member{}, clock: clock}
}

func (s *memStore) duplicate(m *model.Member) error {
	for id, r := range s.rows {
		if id == m.ID {
			continue
		}
		if strings.EqualFold(r.Email, m.Email) {
			return &repository.DuplicateKeyError{Field: "email"}
		}
		if r.EmployeeID == m.EmployeeID {
			return &repository.DuplicateKeyError{Field: "employee_id"}
		}
	}
	return nil
}

func (s *memStore) Create(_ context.Context, m *model.Member, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if err := s.duplicate(m); err != nil {
		return err
	}
	last := ""
	prefix := utils.MemberIDPrefix(year)
	for _, r := range s.rows {
		if strings.HasPrefix(r.MemberID, prefix) && r.MemberID > last {
			last = r.MemberID
		}
	}
	next, err := utils.NextMemberID(year, last)
	if err != nil {
		return err
	}
	m.ApplyLifecycle()
	s.lastID++
	m.ID = s.lastID
	m.MemberID = next
	m.CreatedAt = s.clock()
	m.UpdatedAt = m.CreatedAt
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uint64) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrMemberNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[m.ID]
	if !ok {
		return repository.ErrMemberNotFound
	}
	if err := s.duplicate(m); err != nil {
		return err
	}
	m.ApplyLifecycle()
	m.MemberID = r.MemberID
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = s.clock()
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *memStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrMemberNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memStore) List(_ context.Context, f repository.MemberFilter) ([]*model.Member, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Search))
	var all []*model.Member
	for _, r := range s.rows {
		if q != "" {
			hay := []string{r.FullName, r.MemberID, r.EmployeeID, r.CompanyName, r.Department}
			hit := false
			for _, h := range hay {
				if strings.Contains(strings.ToLower(h), q) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
		}
		if f.Status != "" && string(r.Status) != f.Status {
			continue
		}
		if f.Company != "" && r.CompanyName != f.Company {
			continue
		}
		if f.Department != "" && r.Department != f.Department {
			continue
		}
		cp := *r
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	start := (f.Page - 1) * repository.MemberPageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + repository.MemberPageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (s *memStore) column(m *model.Member, field string) string {
	if field == "company_name" {
		return m.CompanyName
	}
	return m.Department
}

func (s *memStore) DistinctValues(_ context.Context, field string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, r := range s.rows {
		v := s.column(r, field)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) ExistsByField(_ context.Context, field, value string, excludeID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rows {
		if id == excludeID {
			continue
		}
		if (field == "email" && strings.EqualFold(r.Email, value)) || (field == "employee_id" && r.EmployeeID == value) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) count(keep func(*model.Member) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if keep(r) {
			n++
		}
	}
	return n
}

func (s *memStore) CountAll(context.Context) (int64, error) {
	return s.count(func(*model.Member) bool { return true }), nil
}

func (s *memStore) CountByStatus(_ context.Context, st model.Status) (int64, error) {
	return s.count(func(m *model.Member) bool { return m.Status == st }), nil
}

func (s *memStore) CountCreatedSince(_ context.Context, since time.Time) (int64, error) {
	return s.count(func(m *model.Member) bool { return !m.CreatedAt.Before(since) }), nil
}

func (s *memStore) CountEndedSince(_ context.Context, since time.Time) (int64, error) {
	day := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	return s.count(func(m *model.Member) bool {
		return m.MembershipEndDate != nil && !m.MembershipEndDate.Before(day)
	}), nil
}

func (s *memStore) GroupCount(_ context.Context, field string) ([]model.GroupCount, error) {
	s.mu.Lock()
	counts := map[string]int64{}
	for _, r := range s.rows {
		counts[s.column(r, field)]++
	}
	s.mu.Unlock()
	out := make([]model.GroupCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, model.GroupCount{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.MemberEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.MemberEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
