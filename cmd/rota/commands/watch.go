package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dyluth/rota/internal/printer"
	"github.com/dyluth/rota/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchServerURL    string
	watchOutputFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live booking changes on a running server",
	Long: `Connect to a running rota server and print every bookings update
as it is broadcast, starting with the current snapshot.

Output Formats:
  default - Timestamped summary with added (+), removed (-) and reassigned (~) dates
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow the local server
  rota watch

  # Follow a remote server
  rota watch --url https://rota.example.com

  # Record every update
  rota watch --output=json > updates.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchServerURL, "url", "http://localhost:5000", "Server URL (http, https, ws or wss)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	if _, err := watch.SocketURL(watchServerURL); err != nil {
		return printer.Error(
			"invalid server URL",
			fmt.Sprintf("Error: %v", err),
			[]string{"Pass the server's base URL, e.g.:\n  rota watch --url http://localhost:5000"},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watch.StreamBookings(ctx, watchServerURL, outputFormat, cmd.OutOrStdout()); err != nil {
		return printer.Error(
			"lost connection to rota server",
			fmt.Sprintf("Error: %v", err),
			[]string{fmt.Sprintf("Check that the server is running:\n  curl %s/healthz", watchServerURL)},
		)
	}
	return nil
}
