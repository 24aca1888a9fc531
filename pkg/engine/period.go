package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used for parameter value dates.
const DateLayout = "2006-01-02"

// Period is a half-open interval of time [Start, Stop).
// A zero Stop means the period is open-ended.
type Period struct {
	Start time.Time
	Stop  time.Time
}

// Year returns the calendar year period starting on 1 January.
func Year(year int) Period {
	return Years(year, 1)
}

// Years returns a period of n calendar years starting on 1 January of year.
func Years(year, n int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, Stop: start.AddDate(n, 0, 0)}
}

// From returns an open-ended period starting at instant.
func From(instant time.Time) Period {
	return Period{Start: instant}
}

// ParsePeriod parses a period string.
//
// Accepted forms:
//   - "2021"              a single calendar year
//   - "year:2015:20"      twenty calendar years from 2015
//   - "year:2015"         a single calendar year
//   - "2021-04-06"        open-ended from the given date
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, fmt.Errorf("empty period")
	}

	if strings.HasPrefix(s, "year:") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return Period{}, fmt.Errorf("invalid period %q", s)
		}
		year, err := strconv.Atoi(parts[1])
		if err != nil {
			return Period{}, fmt.Errorf("invalid period %q: bad year", s)
		}
		n := 1
		if len(parts) == 3 {
			n, err = strconv.Atoi(parts[2])
			if err != nil || n < 1 {
				return Period{}, fmt.Errorf("invalid period %q: bad length", s)
			}
		}
		return Years(year, n), nil
	}

	if len(s) == 4 {
		year, err := strconv.Atoi(s)
		if err != nil {
			return Period{}, fmt.Errorf("invalid period %q", s)
		}
		return Year(year), nil
	}

	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return From(t), nil
}

// Contains reports whether instant falls inside the period.
func (p Period) Contains(instant time.Time) bool {
	if instant.Before(p.Start) {
		return false
	}
	return p.Stop.IsZero() || instant.Before(p.Stop)
}

// String renders the period in the form accepted by ParsePeriod.
func (p Period) String() string {
	if p.Stop.IsZero() {
		return p.Start.Format(DateLayout)
	}
	if p.Start.Month() == time.January && p.Start.Day() == 1 &&
		p.Stop.Month() == time.January && p.Stop.Day() == 1 {
		n := p.Stop.Year() - p.Start.Year()
		if n == 1 {
			return strconv.Itoa(p.Start.Year())
		}
		return fmt.Sprintf("year:%d:%d", p.Start.Year(), n)
	}
	return p.Start.Format(DateLayout) + "/" + p.Stop.Format(DateLayout)
}
