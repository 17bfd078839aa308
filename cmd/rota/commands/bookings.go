package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/roster"
	"github.com/dyluth/rota/internal/store"
	"github.com/dyluth/rota/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	bookingsOutputFormat string
	bookingsFrom         string
	bookingsTo           string
	bookingsPerson       string
	bookingsStore        storeFlags
)

var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Print the persisted bookings",
	Long: `Print the bookings held by the configured store.

Reads the store directly; a running server is not required and is not
notified.

Output Formats:
  default - Table of date, weekday and person
  json    - One JSON object, the same shape as GET /bookings

Date Filters (inclusive):
  --from  - First date to show
  --to    - Last date to show
  Dates may be YYYY-MM-DD, today, tomorrow, yesterday, or an offset like 7d / -3d.

Examples:
  # Everything in booking_data.csv
  rota bookings

  # The coming week
  rota bookings --from=today --to=7d

  # Alice's bookings from Redis as JSON
  rota bookings --store=redis --redis-url=redis://localhost:6379 --person=Alice -o json`,
	RunE: runBookings,
}

func init() {
	bookingsCmd.Flags().StringVarP(&bookingsOutputFormat, "output", "o", "default", "Output format: default or json")
	bookingsCmd.Flags().StringVar(&bookingsFrom, "from", "", "Show bookings on or after this date")
	bookingsCmd.Flags().StringVar(&bookingsTo, "to", "", "Show bookings on or before this date")
	bookingsCmd.Flags().StringVar(&bookingsPerson, "person", "", "Show only bookings for this person (case-insensitive)")
	bookingsStore.register(bookingsCmd)
	rootCmd.AddCommand(bookingsCmd)
}

func runBookings(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var outputFormat roster.OutputFormat
	switch bookingsOutputFormat {
	case "default":
		outputFormat = roster.OutputFormatDefault
	case "json":
		outputFormat = roster.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", bookingsOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	from, to, err := timespec.ParseRange(bookingsFrom, bookingsTo, time.Now())
	if err != nil {
		return printer.Error(
			"invalid date range",
			fmt.Sprintf("Error: %v", err),
			[]string{"Use dates like 2025-10-29, today, 7d or -3d"},
		)
	}

	cfg, err := loadConfig(cmd, &bookingsStore, nil)
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to open booking store",
			fmt.Sprintf("Error: %v", err),
			storeContext(cfg),
			nil,
		)
	}
	defer s.Close()

	filters := &roster.FilterCriteria{From: from, To: to, Person: bookingsPerson}
	if err := roster.ListBookings(ctx, s, outputFormat, filters, cmd.OutOrStdout()); err != nil {
		if store.IsMalformed(err) {
			return printer.ErrorWithContext(
				"persisted bookings are malformed",
				fmt.Sprintf("Error: %v", err),
				storeContext(cfg),
				[]string{"Fix or remove the offending record; the server refuses to load it as well"},
			)
		}
		return err
	}

	return nil
}
