package handler // handler defines http handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-session/internal/service"
)

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// getUserID extracts the authenticated user's ID placed in the context
// by the identity middleware.  It returns nil for guests.
func getUserID(c echo.Context) *uint64 {
	switch t := c.Get("user_id").(type) {
	case uint64:
		if t > 0 {
			return &t
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}

// badRequest answers 400 with the same body shape as a validation error.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": string(service.KindValidation), "message": msg})
}

// statusOf maps an error kind to an HTTP status.
func statusOf(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a coordinator error.  Internal causes are never
// exposed; the coordinators have already logged them.
func writeError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return err
	}
	kind := service.KindOf(err)
	msg := service.MessageOf(err)
	if kind == service.KindInternal {
		msg = "internal error"
	}
	return c.JSON(statusOf(kind), echo.Map{"error": string(kind), "message": msg})
}

// formatCents renders an amount in cents as a decimal string, e.g. 4449
// as "44.49".
func formatCents(cents int64) string {
	sign := ""
	u := uint64(cents)
	if cents < 0 {
		sign = "-"
		u = uint64(-cents)
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/100, u%100)
}
