// Package repository defines the MySQL data access layer and the error
// values shared by its repositories.  Handlers and services use these
// sentinels to tell failure scenarios apart.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the repositories react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// ErrMemberNotFound is returned when no member row has the given id.
var ErrMemberNotFound = errors.New("member not found")

// ErrAccountNotFound is returned when no account row matches.
var ErrAccountNotFound = errors.New("account not found")

// ErrMemberIDConflict is returned when a unique member_id could not be
// assigned within the retry budget.
var ErrMemberIDConflict = errors.New("member id conflict")

// ErrDuplicate matches every *DuplicateKeyError through errors.Is.
var ErrDuplicate = errors.New("duplicate value")

// DuplicateKeyError reports a unique key violation on a single column.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicate }

// duplicateKey classifies a MySQL duplicate-entry error by the unique key
// named in the server message, e.g.
//   Duplicate entry 'x@y.z' for key 'members.uq_members_email'
// It returns the column behind the key and true, or "" and false when err
// is not a duplicate-entry error.
func duplicateKey(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return "", false
	}
	msg := myErr.Message
	for key, field := range uniqueKeys {
		if strings.Contains(msg, key) {
			return field, true
		}
	}
	return "", true
}

// lockConflict reports whether InnoDB aborted the statement or transaction
// because of a deadlock or a lock wait timeout.  The transaction is rolled
// back and may be retried from the start.
func lockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
}

// uniqueKeys maps unique index names to the column they protect.
var uniqueKeys = map[string]string{
	"uq_members_member_id":   "member_id",
	"uq_members_employee_id": "employee_id",
	"uq_members_email":       "email",
	"uq_accounts_email":      "email",
	"uq_accounts_member_ref": "member_ref",
}
