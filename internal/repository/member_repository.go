package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/utils"
)

// MemberPageSize is the fixed page size of member listings.
const MemberPageSize = 10

// createAttempts bounds how often Create recomputes the member_id after a
// unique key collision before giving up with ErrMemberIDConflict.
const createAttempts = 3

// ErrUnknownField is returned for column names outside the allow-lists of
// DistinctValues, ExistsByField and GroupCount.
var ErrUnknownField = errors.New("unknown member field")

const memberColumns = `id, member_id, full_name, employee_id, company_name, department,
	phone_number, email, membership_start_date, membership_end_date, status, created_at, updated_at`

// MemberFilter defines the optional, conjunctive filters and the page of a
// member listing.  Empty strings disable a filter.
type MemberFilter struct {
	Search     string `json:"search"`
	Status     string `json:"status"`
	Company    string `json:"company"`
	Department string `json:"department"`
	Page       int    `json:"page"`
}

// MemberRepo encapsulates all database queries related to members.
type MemberRepo struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewMemberRepo constructs a MemberRepo with the provided DB handle.
func NewMemberRepo(db *sql.DB, logger *logrus.Logger) *MemberRepo {
	return &MemberRepo{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(s rowScanner) (*model.Member, error) {
	var (
		m      model.Member
		end    sql.NullTime
		status string
	)
	if err := s.Scan(
		&m.ID, &m.MemberID, &m.FullName, &m.EmployeeID, &m.CompanyName, &m.Department,
		&m.PhoneNumber, &m.Email, &m.MembershipStartDate, &end, &status, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if end.Valid {
		e := end.Time
		m.MembershipEndDate = &e
	}
	m.Status = model.Status(status)
	return &m, nil
}

// dateArg formats a membership date for a DATE column.
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

// Create inserts a new member and assigns its member_id for the given year.
// The highest existing id of the year is read with a locking read inside
// the insert transaction, so concurrent creators on the same prefix queue
// behind each other.  Should two creators still compute the same id, the
// unique key rejects the second insert and the whole transaction is retried
// with a fresh read, at most createAttempts times.  Deadlocks and lock wait
// timeouts are retried the same way.  On success m is
// replaced with the stored row.
func (r *MemberRepo) Create(ctx context.Context, m *model.Member, year int) error {
	// status is always re-derived here, whatever the caller set
	m.ApplyLifecycle()

	for attempt := 1; attempt <= createAttempts; attempt++ {
		err := r.createOnce(ctx, m, year)
		if err == nil {
			return nil
		}
		if lockConflict(err) {
			// first creators of a year share a gap lock and InnoDB
			// aborts one of them
			r.logger.WithError(err).WithFields(logrus.Fields{
				"operation": "CreateMember",
				"attempt":   attempt,
				"year":      year,
			}).Warn("member_id lock conflict, retrying")
			continue
		}
		field, dup := duplicateKey(err)
		if !dup {
			return err
		}
		if field != "member_id" {
			return &DuplicateKeyError{Field: field}
		}
		r.logger.WithFields(logrus.Fields{
			"operation": "CreateMember",
			"attempt":   attempt,
			"year":      year,
		}).Warn("member_id collision, retrying")
	}
	return fmt.Errorf("%w: %d attempts for year %d", ErrMemberIDConflict, createAttempts, year)
}

func (r *MemberRepo) createOnce(ctx context.Context, m *model.Member, year int) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create member: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const qLast = `SELECT member_id FROM members WHERE member_id LIKE ?
		ORDER BY member_id DESC LIMIT 1 FOR UPDATE`
	var last string
	if err = tx.QueryRowContext(ctx, qLast, utils.MemberIDPattern(year)).Scan(&last); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read last member id: %w", err)
		}
		last = ""
	}
	nextID, err := utils.NextMemberID(year, last)
	if err != nil {
		return err
	}

	const qInsert = `INSERT INTO members (member_id, full_name, employee_id, company_name, department,
		phone_number, email, membership_start_date, membership_end_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, qInsert,
		nextID, m.FullName, m.EmployeeID, m.CompanyName, m.Department,
		m.PhoneNumber, m.Email, dateArg(&m.MembershipStartDate), dateArg(m.MembershipEndDate), string(m.Status))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	created, err := scanMember(tx.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id))
	if err != nil {
		return fmt.Errorf("read created member: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create member: %w", err)
	}
	*m = *created
	return nil
}

// GetByID fetches a member by internal id.  It returns ErrMemberNotFound if
// no row is found.
func (r *MemberRepo) GetByID(ctx context.Context, id uint64) (*model.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return m, nil
}

// Update writes every mutable column of m in a single statement and then
// reloads the row.  member_id and created_at are never written.  Status is
// re-derived from the end date before writing.
func (r *MemberRepo) Update(ctx context.Context, m *model.Member) error {
	m.ApplyLifecycle()

	const q = `UPDATE members SET full_name = ?, employee_id = ?, company_name = ?, department = ?,
		phone_number = ?, email = ?, membership_start_date = ?, membership_end_date = ?, status = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q,
		m.FullName, m.EmployeeID, m.CompanyName, m.Department,
		m.PhoneNumber, m.Email, dateArg(&m.MembershipStartDate), dateArg(m.MembershipEndDate), string(m.Status),
		m.ID)
	if err != nil {
		if field, dup := duplicateKey(err); dup {
			return &DuplicateKeyError{Field: field}
		}
		return err
	}
	// MySQL reports zero affected rows for unchanged values, so existence is
	// confirmed by reading the row back.
	updated, err := r.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	*m = *updated
	return nil
}

// Delete permanently removes a member.
func (r *MemberRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// escapeLike escapes LIKE wildcards so the search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List returns one page of members matching the filter, newest first, and
// the total number of matching rows.
func (r *MemberRepo) List(ctx context.Context, f MemberFilter) ([]*model.Member, int64, error) {
	where := []string{}
	args := []any{}

	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(escapeLike(s)) + "%"
		where = append(where, `(LOWER(full_name) LIKE ? OR LOWER(member_id) LIKE ? OR LOWER(employee_id) LIKE ?
			OR LOWER(company_name) LIKE ? OR LOWER(department) LIKE ?)`)
		args = append(args, like, like, like, like, like)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Company != "" {
		where = append(where, "company_name = ?")
		args = append(args, f.Company)
	}
	if f.Department != "" {
		where = append(where, "department = ?")
		args = append(args, f.Department)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * MemberPageSize

	dataSQL := "SELECT " + memberColumns + " FROM members WHERE " + cond +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, dataSQL, append(append([]any{}, args...), MemberPageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Member, 0, MemberPageSize)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// groupableFields are the columns offered as filter choices and report
// breakdowns.
var groupableFields = map[string]bool{"company_name": true, "department": true}

// DistinctValues returns the sorted distinct values of company_name or
// department.
func (r *MemberRepo) DistinctValues(ctx context.Context, field string) ([]string, error) {
	if !groupableFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT "+field+" FROM members ORDER BY "+field+" ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var uniqueFields = map[string]bool{"employee_id": true, "email": true}

// ExistsByField reports whether another member (id != excludeID) already
// holds value in the unique column field.  Pass 0 to check all rows.
func (r *MemberRepo) ExistsByField(ctx context.Context, field, value string, excludeID uint64) (bool, error) {
	if !uniqueFields[field] {
		return false, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	var exists bool
	q := "SELECT EXISTS(SELECT 1 FROM members WHERE " + field + " = ? AND id <> ?)"
	if err := r.db.QueryRowContext(ctx, q, value, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CountAll returns the number of members.
func (r *MemberRepo) CountAll(ctx context.Context) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM members")
}

// CountByStatus returns the number of members with the given status.
func (r *MemberRepo) CountByStatus(ctx context.Context, status model.Status) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM members WHERE status = ?", string(status))
}

// CountCreatedSince returns the number of members registered at or after since.
func (r *MemberRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM members WHERE created_at >= ?", since.UTC())
}

// CountEndedSince returns the number of members whose membership end date
// is set and falls on or after since.
func (r *MemberRepo) CountEndedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx,
		"SELECT COUNT(*) FROM members WHERE membership_end_date IS NOT NULL AND membership_end_date >= ?",
		since.UTC().Format(model.DateLayout))
}

func (r *MemberRepo) count(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GroupCount counts members per distinct value of company_name or
// department, largest group first and ties in alphabetical order.
func (r *MemberRepo) GroupCount(ctx context.Context, field string) ([]model.GroupCount, error) {
	if !groupableFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	q := "SELECT " + field + ", COUNT(*) AS total FROM members GROUP BY " + field +
		" ORDER BY total DESC, " + field + " ASC"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.GroupCount{}
	for rows.Next() {
		var g model.GroupCount
		if err := rows.Scan(&g.Name, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
