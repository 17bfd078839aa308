package roster

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/rota/pkg/booking"
)

// FormatTable writes the bookings as a table with columns DATE, DAY and PERSON.
// Returns the number of bookings formatted.
func FormatTable(w io.Writer, m booking.Map) int {
	if len(m) == 0 {
		fmt.Fprintf(w, "No bookings found\n")
		return 0
	}

	fmt.Fprintf(w, "%-10s  %-3s  %s\n", "DATE", "DAY", "PERSON")
	fmt.Fprintf(w, "%-10s  %-3s  %s\n", "----------", "---", "--------------------")

	for _, date := range m.Dates() {
		fmt.Fprintf(w, "%-10s  %-3s  %s\n", date, formatWeekday(date), formatPerson(m[date]))
	}

	countMsg := "booking"
	if len(m) != 1 {
		countMsg = "bookings"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(m), countMsg)

	return len(m)
}

// FormatJSON writes the bookings as a single pretty-printed JSON object,
// the same shape GET /bookings returns.
func FormatJSON(w io.Writer, m booking.Map) error {
	data, err := json.MarshalIndent(m.Clone(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bookings to JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func formatWeekday(date string) string {
	t, err := booking.ParseDate(date)
	if err != nil {
		return "?"
	}
	return t.Weekday().String()[:3]
}

func formatPerson(person string) string {
	if person == "" {
		return "(unassigned)"
	}
	return person
}
