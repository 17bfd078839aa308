package roster

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/rota/internal/store"
	"github.com/dyluth/rota/pkg/booking"
)

// OutputFormat specifies how to format the booking list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table sorted by date
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON outputs the filtered Map as one JSON object
	OutputFormatJSON OutputFormat = "json"
)

// FilterCriteria defines filtering options for the bookings command.
// All filters are ANDed together.
type FilterCriteria struct {
	From   string // Inclusive lower bound (YYYY-MM-DD), empty = no filter
	To     string // Inclusive upper bound (YYYY-MM-DD), empty = no filter
	Person string // Case-insensitive exact match, empty = no filter
}

// matches returns true if the booking matches all filter criteria.
func (fc *FilterCriteria) matches(date, person string) bool {
	if fc.From != "" && date < fc.From {
		return false
	}
	if fc.To != "" && date > fc.To {
		return false
	}
	if fc.Person != "" && !strings.EqualFold(fc.Person, person) {
		return false
	}
	return true
}

// Filter returns the subset of m matching the criteria. A nil filter keeps everything.
func Filter(m booking.Map, filters *FilterCriteria) booking.Map {
	if filters == nil {
		return m.Clone()
	}
	out := booking.Map{}
	for date, person := range m {
		if filters.matches(date, person) {
			out[date] = person
		}
	}
	return out
}

// ListBookings loads the Map from s, applies filters and writes it to w.
// It reads the store directly and never writes, so it is safe to run next
// to a live server.
func ListBookings(ctx context.Context, s store.Store, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	m, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bookings: %w", err)
	}

	m = Filter(m, filters)

	switch format {
	case OutputFormatDefault:
		FormatTable(w, m)
	case OutputFormatJSON:
		if err := FormatJSON(w, m); err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
