package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/usagedash/internal/app"
	"github.com/okian/usagedash/internal/domain/model"
)

const dateLayout = "2006-01-02"

// parseUsageQuery reads the window, organization and source parameters.
// With no dates and no days the window is all-time. A date-only endDate
// includes that whole day. Windows ending now carry a Relative cache identity.
func parseUsageQuery(v url.Values, now time.Time) (service.UsageQuery, error) {
	var q service.UsageQuery

	src, err := model.ParseSource(strings.ToLower(v.Get("source")), "")
	if err != nil {
		return q, fmt.Errorf("%w: source %q", err, v.Get("source"))
	}
	q.Source = src

	q.OrgFilter = strings.TrimSpace(v.Get("selectedOrg"))
	if q.OrgFilter == "" {
		q.OrgFilter = strings.TrimSpace(v.Get("orgId"))
	}
	if strings.EqualFold(q.OrgFilter, "all") {
		q.OrgFilter = ""
	}

	start, end, days := v.Get("startDate"), v.Get("endDate"), v.Get("days")
	switch {
	case start != "":
		from, _, err := parseDate(start)
		if err != nil {
			return q, fmt.Errorf("%w: startDate: %w", ErrBadRequest, err)
		}
		to := now
		if end == "" {
			q.Relative = "since=" + from.Format(time.RFC3339Nano)
		} else {
			var dateOnly bool
			if to, dateOnly, err = parseDate(end); err != nil {
				return q, fmt.Errorf("%w: endDate: %w", ErrBadRequest, err)
			}
			if dateOnly {
				to = to.AddDate(0, 0, 1)
			}
		}
		q.Window, err = model.NewWindow(from, to)
		return q, err
	case end != "":
		return q, fmt.Errorf("%w: endDate requires startDate", ErrBadRequest)
	case days != "":
		n, err := strconv.Atoi(days)
		if err != nil {
			return q, fmt.Errorf("%w: days must be an integer", ErrBadRequest)
		}
		q.Window, err = model.LastDays(now, n)
		q.Relative = "days=" + strconv.Itoa(n)
		return q, err
	default:
		q.Window = model.AllTimeWindow()
		return q, nil
	}
}

// parseDate accepts RFC 3339 timestamps or plain dates, which are read as
// UTC midnight.
func parseDate(s string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), false, nil
	}
	if t, err = time.Parse(dateLayout, s); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
}
