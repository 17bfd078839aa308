package booking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the layout of every key in a Map (calendar date, no time).
const DateLayout = "2006-01-02"

// Map is the full booking state: calendar date (YYYY-MM-DD) to assigned person.
// The person value is free text; empty and duplicate names are allowed.
type Map map[string]string

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func dateValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks that every key is a well-formed calendar date.
// A nil or empty map is valid.
func (m Map) Validate() error {
	v := dateValidator()
	for date := range m {
		if err := v.Var(date, "required,datetime="+DateLayout); err != nil {
			return fmt.Errorf("invalid booking date %q: must be %s", date, "YYYY-MM-DD")
		}
	}
	return nil
}

// Clone returns an independent copy. Cloning nil yields an empty, non-nil Map
// so that it always encodes as {} rather than null.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for date, person := range m {
		out[date] = person
	}
	return out
}

// Equal reports whether both maps hold exactly the same bookings.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for date, person := range m {
		p, ok := other[date]
		if !ok || p != person {
			return false
		}
	}
	return true
}

// Dates returns the booked dates in ascending order.
func (m Map) Dates() []string {
	dates := make([]string, 0, len(m))
	for date := range m {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// ParseDate parses a booking date key.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: must be YYYY-MM-DD", s)
	}
	return t, nil
}
