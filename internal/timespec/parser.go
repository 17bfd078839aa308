package timespec

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dyluth/rota/pkg/booking"
)

var offsetPattern = regexp.MustCompile(`^([+-]?\d+)d$`)

// Parse resolves a date specification to a booking date key (YYYY-MM-DD).
// Supports:
//   - Calendar dates: "2025-10-29"
//   - Named days: "today", "tomorrow", "yesterday"
//   - Day offsets relative to today: "7d", "+7d", "-3d"
//
// now anchors the relative forms; its location decides what "today" is.
func Parse(spec string, now time.Time) (string, error) {
	if spec == "" {
		return "", fmt.Errorf("empty date specification")
	}

	if t, err := time.Parse(booking.DateLayout, spec); err == nil {
		return t.Format(booking.DateLayout), nil
	}

	switch spec {
	case "today":
		return now.Format(booking.DateLayout), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(booking.DateLayout), nil
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(booking.DateLayout), nil
	}

	if match := offsetPattern.FindStringSubmatch(spec); match != nil {
		days, err := strconv.Atoi(match[1])
		if err == nil {
			return now.AddDate(0, 0, days).Format(booking.DateLayout), nil
		}
	}

	return "", fmt.Errorf("invalid date specification: %s (use a date like '2025-10-29', 'today', or an offset like '7d' or '-3d')", spec)
}

// ParseRange parses both --from and --to flags into an inclusive date range.
// Empty strings indicate "no bound" for that end of the range.
//
// Validates that from is not after to if both are specified.
func ParseRange(from, to string, now time.Time) (string, string, error) {
	var fromDate, toDate string
	var err error

	if from != "" {
		fromDate, err = Parse(from, now)
		if err != nil {
			return "", "", fmt.Errorf("invalid --from: %w", err)
		}
	}

	if to != "" {
		toDate, err = Parse(to, now)
		if err != nil {
			return "", "", fmt.Errorf("invalid --to: %w", err)
		}
	}

	// YYYY-MM-DD compares correctly as a string
	if fromDate != "" && toDate != "" && fromDate > toDate {
		return "", "", fmt.Errorf("--from must not be after --to")
	}

	return fromDate, toDate, nil
}
