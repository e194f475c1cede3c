package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
)

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// parseTime accepts RFC 3339 timestamps and plain dates (midnight UTC).
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing time")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Newf("bad time %q, want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// queryRange reads start and end query parameters.  A missing end defaults
// to start plus def.
func queryRange(c echo.Context, def time.Duration) (time.Time, time.Time, error) {
	start, err := parseTime(c.QueryParam("start"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "start")
	}
	if c.QueryParam("end") == "" {
		return start, start.Add(def), nil
	}
	end, err := parseTime(c.QueryParam("end"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "end")
	}
	return start, end, nil
}

// queryLimit reads the optional limit parameter, capped at ceiling.
func queryLimit(c echo.Context, def, ceiling int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}

// window is the body of slot create and move requests.
type window struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}
