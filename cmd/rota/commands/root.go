package commands

import (
	"fmt"

	"github.com/dyluth/rota/internal/config"
	"github.com/dyluth/rota/internal/printer"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rota",
	Short: "Rota - real-time shared booking board",
	Long: `Rota keeps a shared calendar of who is booked on which date and
pushes every change to all connected browsers as it happens.

Every update replaces the whole board; the last update to be saved wins.
Bookings are persisted to a CSV file, Redis, or SQLite.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to rota.yml (optional; environment variables override it)")
}

// storeFlags are the store-selection flags shared by serve and bookings.
type storeFlags struct {
	backend    string
	csvPath    string
	redisURL   string
	namespace  string
	sqlitePath string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "store", "", "Store backend: file, redis, or sqlite")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "CSV file for the file backend")
	cmd.Flags().StringVar(&f.redisURL, "redis-url", "", "Redis URL for the redis backend (e.g. redis://localhost:6379/0)")
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "Redis key namespace")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite", "", "Database file for the sqlite backend")
}

// apply overlays explicitly set flags onto cfg.
func (f *storeFlags) apply(cmd *cobra.Command, cfg *config.RotaConfig) {
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend = f.backend
	}
	if cmd.Flags().Changed("csv") {
		cfg.Store.CSVPath = f.csvPath
	}
	if cmd.Flags().Changed("redis-url") {
		cfg.Store.RedisURL = f.redisURL
	}
	if cmd.Flags().Changed("namespace") {
		cfg.Store.Namespace = f.namespace
	}
	if cmd.Flags().Changed("sqlite") {
		cfg.Store.SQLitePath = f.sqlitePath
	}
}

// loadConfig resolves configuration from rota.yml, the environment and the
// command's flags, in increasing order of precedence.
func loadConfig(cmd *cobra.Command, flags *storeFlags, overlay func(*config.RotaConfig)) (*config.RotaConfig, error) {
	cfg, err := config.LoadWithOverrides(configPath, func(cfg *config.RotaConfig) {
		flags.apply(cmd, cfg)
		if overlay != nil {
			overlay(cfg)
		}
	})
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			fmt.Sprintf("Error: %v", err),
			[]string{
				"Check rota.yml and the PORT, REDIS_URL and ROTA_* environment variables",
				fmt.Sprintf("Run 'rota %s --help' to see the available flags", cmd.Name()),
			},
		)
	}
	return cfg, nil
}
