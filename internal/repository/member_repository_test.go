package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/utils"
)

var memberCols = []string{
	"id", "member_id", "full_name", "employee_id", "company_name", "department",
	"phone_number", "email", "membership_start_date", "membership_end_date", "status", "created_at", "updated_at",
}

func newMemberRepo(t *testing.T) (*MemberRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMemberRepo(db, logger), mock
}

func sampleMember() *model.Member {
	return &model.Member{
		FullName:            "Ann Lee",
		EmployeeID:          "E-100",
		CompanyName:         "Acme",
		Department:          "Ops",
		PhoneNumber:         "555-0100",
		Email:               "ann@acme.test",
		MembershipStartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		// deliberately wrong, the store re-derives it
		Status: model.StatusInactive,
	}
}

func memberRow(id int64, memberID string, end any, status string) *sqlmock.Rows {
	ts := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(memberCols).AddRow(
		id, memberID, "Ann Lee", "E-100", "Acme", "Ops", "555-0100", "ann@acme.test",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end, status, ts, ts,
	)
}

func insertArgs(memberID string) []driver.Value {
	return []driver.Value{memberID, "Ann Lee", "E-100", "Acme", "Ops", "555-0100", "ann@acme.test", "2024-03-01", nil, "active"}
}

func dupErr(key string) error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'members." + key + "'"}
}

const qLastID = "SELECT member_id FROM members WHERE member_id LIKE"

func TestMemberCreateAssignsNextID(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).WithArgs("SP2024%").
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("SP20240007"))
	mock.ExpectExec("INSERT INTO members").WithArgs(insertArgs("SP20240008")...).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectQuery("FROM members WHERE id =").WithArgs(int64(12)).
		WillReturnRows(memberRow(12, "SP20240008", nil, "active"))
	mock.ExpectCommit()

	m := sampleMember()
	require.NoError(t, repo.Create(context.Background(), m, 2024))
	assert.Equal(t, uint64(12), m.ID)
	assert.Equal(t, "SP20240008", m.MemberID)
	assert.Equal(t, model.StatusActive, m.Status)
	assert.Nil(t, m.MembershipEndDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateFirstOfYear(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).WithArgs("SP2024%").
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}))
	mock.ExpectExec("INSERT INTO members").WithArgs(insertArgs("SP20240001")...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM members WHERE id =").WithArgs(int64(1)).
		WillReturnRows(memberRow(1, "SP20240001", nil, "active"))
	mock.ExpectCommit()

	m := sampleMember()
	require.NoError(t, repo.Create(context.Background(), m, 2024))
	assert.Equal(t, "SP20240001", m.MemberID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateRetriesOnMemberIDCollision(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("SP20240007"))
	mock.ExpectExec("INSERT INTO members").WithArgs(insertArgs("SP20240008")...).
		WillReturnError(dupErr("uq_members_member_id"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("SP20240008"))
	mock.ExpectExec("INSERT INTO members").WithArgs(insertArgs("SP20240009")...).
		WillReturnResult(sqlmock.NewResult(13, 1))
	mock.ExpectQuery("FROM members WHERE id =").WithArgs(int64(13)).
		WillReturnRows(memberRow(13, "SP20240009", nil, "active"))
	mock.ExpectCommit()

	m := sampleMember()
	require.NoError(t, repo.Create(context.Background(), m, 2024))
	assert.Equal(t, "SP20240009", m.MemberID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateRetriesAfterLockConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadlock on insert", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock; try restarting transaction"}},
		{"lock wait timeout", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded; try restarting transaction"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMemberRepo(t)

			// both creators saw an empty year; this one lost the gap lock
			mock.ExpectBegin()
			mock.ExpectQuery(qLastID).WithArgs("SP2024%").
				WillReturnRows(sqlmock.NewRows([]string{"member_id"}))
			mock.ExpectExec("INSERT INTO members").WithArgs(insertArgs("SP20240001")...).
				WillReturnError(tt.err)
			mock.ExpectRollback()

			mock.ExpectBegin()
			mock.ExpectQuery(qLastID).WithArgs("SP2024%").
				WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("SP20240001"))
			mock.ExpectExec("INSERT INTO members").WithArgs(insertArgs("SP20240002")...).
				WillReturnResult(sqlmock.NewResult(2, 1))
			mock.ExpectQuery("FROM members WHERE id =").WithArgs(int64(2)).
				WillReturnRows(memberRow(2, "SP20240002", nil, "active"))
			mock.ExpectCommit()

			m := sampleMember()
			require.NoError(t, repo.Create(context.Background(), m, 2024))
			assert.Equal(t, "SP20240002", m.MemberID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMemberCreateGivesUpAfterRepeatedDeadlocks(t *testing.T) {
	repo, mock := newMemberRepo(t)

	for i := 0; i < createAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(qLastID).
			WillReturnRows(sqlmock.NewRows([]string{"member_id"}))
		mock.ExpectExec("INSERT INTO members").WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
		mock.ExpectRollback()
	}

	err := repo.Create(context.Background(), sampleMember(), 2024)
	assert.ErrorIs(t, err, ErrMemberIDConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo, mock := newMemberRepo(t)

	for i := 0; i < createAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(qLastID).
			WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("SP20240007"))
		mock.ExpectExec("INSERT INTO members").WillReturnError(dupErr("uq_members_member_id"))
		mock.ExpectRollback()
	}

	err := repo.Create(context.Background(), sampleMember(), 2024)
	assert.ErrorIs(t, err, ErrMemberIDConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateDuplicateEmail(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}))
	mock.ExpectExec("INSERT INTO members").WillReturnError(dupErr("uq_members_email"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleMember(), 2024)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "email", dup.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateSequenceExhausted(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).
		WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("SP20249999"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleMember(), 2024)
	assert.ErrorIs(t, err, utils.ErrSequenceExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberCreateDerivesInactiveFromEndDate(t *testing.T) {
	repo, mock := newMemberRepo(t)

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	m := sampleMember()
	m.Status = model.StatusActive
	m.MembershipEndDate = &end

	args := insertArgs("SP20240001")
	args[8] = "2024-12-31"
	args[9] = "inactive"

	mock.ExpectBegin()
	mock.ExpectQuery(qLastID).WillReturnRows(sqlmock.NewRows([]string{"member_id"}))
	mock.ExpectExec("INSERT INTO members").WithArgs(args...).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM members WHERE id =").
		WillReturnRows(memberRow(1, "SP20240001", end, "inactive"))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), m, 2024))
	assert.Equal(t, model.StatusInactive, m.Status)
	require.NotNil(t, m.MembershipEndDate)
	assert.True(t, end.Equal(*m.MembershipEndDate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberGetByIDNotFound(t *testing.T) {
	repo, mock := newMemberRepo(t)
	mock.ExpectQuery("FROM members WHERE id =").WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(memberCols))

	_, err := repo.GetByID(context.Background(), 5)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMemberUpdateNeverWritesMemberID(t *testing.T) {
	repo, mock := newMemberRepo(t)

	m := sampleMember()
	m.ID = 12
	m.MemberID = "SP20990001"

	mock.ExpectExec("UPDATE members SET full_name").
		WithArgs("Ann Lee", "E-100", "Acme", "Ops", "555-0100", "ann@acme.test", "2024-03-01", nil, "active", uint64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM members WHERE id =").WithArgs(uint64(12)).
		WillReturnRows(memberRow(12, "SP20240008", nil, "active"))

	require.NoError(t, repo.Update(context.Background(), m))
	assert.Equal(t, "SP20240008", m.MemberID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberUpdateMissing(t *testing.T) {
	repo, mock := newMemberRepo(t)

	m := sampleMember()
	m.ID = 77
	mock.ExpectExec("UPDATE members SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM members WHERE id =").WithArgs(uint64(77)).
		WillReturnRows(sqlmock.NewRows(memberCols))

	assert.ErrorIs(t, repo.Update(context.Background(), m), ErrMemberNotFound)
}

func TestMemberUpdateDuplicateEmployeeID(t *testing.T) {
	repo, mock := newMemberRepo(t)

	m := sampleMember()
	m.ID = 3
	mock.ExpectExec("UPDATE members SET").WillReturnError(dupErr("uq_members_employee_id"))

	err := repo.Update(context.Background(), m)
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "employee_id", dup.Field)
}

func TestMemberDelete(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectExec("DELETE FROM members WHERE id =").WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM members WHERE id =").WithArgs(uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 4))
	assert.ErrorIs(t, repo.Delete(context.Background(), 4), ErrMemberNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberListFiltersAndPaging(t *testing.T) {
	repo, mock := newMemberRepo(t)

	like := `%ann\_\%%`
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM members WHERE")).
		WithArgs(like, like, like, like, like, "active", "Acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(like, like, like, like, like, "active", "Acme", MemberPageSize, 10).
		WillReturnRows(memberRow(1, "SP20240001", nil, "active"))

	items, total, err := repo.List(context.Background(), MemberFilter{
		Search:  " Ann_% ",
		Status:  "active",
		Company: "Acme",
		Page:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), total)
	require.Len(t, items, 1)
	assert.Equal(t, "SP20240001", items[0].MemberID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberListEmptyPage(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM members WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("LIMIT").WithArgs(MemberPageSize, 0).
		WillReturnRows(sqlmock.NewRows(memberCols))

	items, total, err := repo.List(context.Background(), MemberFilter{Page: 0})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestMemberDistinctValues(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT department FROM members ORDER BY department ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"department"}).AddRow("Ops").AddRow("Sales"))

	vals, err := repo.DistinctValues(context.Background(), "department")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ops", "Sales"}, vals)

	_, err = repo.DistinctValues(context.Background(), "email")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestMemberExistsByField(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM members WHERE email = ? AND id <> ?)")).
		WithArgs("ann@acme.test", uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsByField(context.Background(), "email", "ann@acme.test", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.ExistsByField(context.Background(), "full_name", "x", 0)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestMemberCounters(t *testing.T) {
	repo, mock := newMemberRepo(t)
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM members")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(9))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ?")).WithArgs("inactive").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_at >= ?")).WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("membership_end_date IS NOT NULL AND membership_end_date >= ?")).
		WithArgs("2024-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	total, err := repo.CountAll(ctx)
	require.NoError(t, err)
	inactive, err := repo.CountByStatus(ctx, model.StatusInactive)
	require.NoError(t, err)
	created, err := repo.CountCreatedSince(ctx, since)
	require.NoError(t, err)
	ended, err := repo.CountEndedSince(ctx, since)
	require.NoError(t, err)

	assert.Equal(t, []int64{9, 2, 4, 1}, []int64{total, inactive, created, ended})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberGroupCount(t *testing.T) {
	repo, mock := newMemberRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT company_name, COUNT(*) AS total FROM members GROUP BY company_name ORDER BY total DESC, company_name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"company_name", "total"}).AddRow("Acme", 3).AddRow("Beta", 3).AddRow("Zed", 1))

	groups, err := repo.GroupCount(context.Background(), "company_name")
	require.NoError(t, err)
	assert.Equal(t, []model.GroupCount{{Name: "Acme", Count: 3}, {Name: "Beta", Count: 3}, {Name: "Zed", Count: 1}}, groups)

	_, err = repo.GroupCount(context.Background(), "status")
	assert.ErrorIs(t, err, ErrUnknownField)
}
