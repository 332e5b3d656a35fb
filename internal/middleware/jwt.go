package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// OptionalJWT identifies diners who present a Bearer access token while
// letting anonymous guests through.  Tokens are HS256 and signed with
// secret by the account service; the "sub" claim carries the user ID.
// A request without an Authorization header continues as a guest.  A
// header that is present but malformed, expired or badly signed is
// rejected with 401 so a client never silently joins as someone else.
// With an empty secret identity is disabled and every caller is a guest.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if auth == "" || secret == "" {
				return next(c)
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "malformed authorization header")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "invalid claims")
			}
			uid, ok := subjectID(claims)
			if !ok {
				return unauthorized(c, "token has no user id")
			}

			c.Set("user", tok)
			c.Set("user_id", uid)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": msg})
}
