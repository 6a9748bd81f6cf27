package middleware

// identity.go holds the helpers that move the authenticated caller through
// the Echo context.  JWTAuth stores it; handlers and the other middleware
// read it back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/union-registry/internal/model"
)

const callerKey = "caller"

// SetCaller stores the authenticated caller on the context.  The role and
// account id are also exposed under "role" and "user_id".
func SetCaller(c echo.Context, caller model.Caller) {
	c.Set(callerKey, caller)
	c.Set("role", caller.Role)
	c.Set("user_id", strconv.FormatUint(caller.AccountID, 10))
}

// CallerFrom returns the caller stored by JWTAuth.  ok is false on routes
// without authentication.
func CallerFrom(c echo.Context) (model.Caller, bool) {
	caller, ok := c.Get(callerKey).(model.Caller)
	return caller, ok
}

// callerID is the account id as a string, or "anon" when nobody is
// authenticated.
func callerID(c echo.Context) string {
	if caller, ok := CallerFrom(c); ok && caller.AccountID != 0 {
		return strconv.FormatUint(caller.AccountID, 10)
	}
	return "anon"
}
