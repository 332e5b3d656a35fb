package middleware

// identity.go holds the helpers that read the caller identity placed in
// the echo context by OptionalJWT.

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated diner's ID, or false for guests.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get("user_id").(uint64)
	return id, ok && id > 0
}

// subjectID reads the numeric user ID from the "sub" claim (falling back
// to "user_id").  Issuers encode it either as a JSON number or a string.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	for _, key := range []string{"sub", "user_id"} {
		switch v := claims[key].(type) {
		case float64:
			if v > 0 && v == float64(uint64(v)) {
				return uint64(v), true
			}
		case string:
			if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}
