package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"bahnhofjaeger/internal/app"
	"bahnhofjaeger/internal/config"
	"bahnhofjaeger/internal/server"
	"bahnhofjaeger/internal/station"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a wired App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts for a passphrase without echoing it. confirm asks a
// second time and requires both entries to match.
func readPassphrase(confirm bool) (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(first) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		second, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("passphrases do not match")
		}
	}

	return string(first), nil
}

var rootCmd = &cobra.Command{
	Use:   "bahnhofjaeger",
	Short: "Collect train stations and track your progress",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()

		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
		fmt.Printf("Dataset:   %s\n", datasetSource(cfg))
		return nil
	},
}

func datasetSource(cfg *config.Config) string {
	if cfg.Dataset.Path != "" {
		return cfg.Dataset.Path
	}
	if cfg.Dataset.URL != "" {
		return cfg.Dataset.URL
	}
	return "(none)"
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Import the station catalog on first launch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.Initialize(cmd.Context())
		if result.Err != nil {
			return fmt.Errorf("initialization failed: %w", result.Err)
		}

		if result.FirstRun {
			fmt.Printf("Imported %d stations. Ready to collect.\n", result.Imported)
		} else {
			fmt.Println("Catalog already imported. Ready to collect.")
		}
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Re-import the station catalog from the configured dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.Reimport(cmd.Context())
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Imported %d stations\n", count)
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search the station catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Search(cmd.Context(), strings.Join(args, " "), limit)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No stations found.")
			return nil
		}

		for _, r := range results {
			marker := " "
			if r.Collected {
				marker = "*"
			}
			fmt.Printf("%s %-40s  class %d  %3d pts  %s\n",
				marker,
				r.Station.Name,
				r.Station.PriceClass,
				r.Station.PointValue,
				r.Station.ID,
			)
		}
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add STATION_ID",
	Short: "Add a station to your collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, st, err := a.Add(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		switch outcome {
		case station.Added:
			fmt.Printf("Collected %s (+%d points)\n", st.Name, st.PointValue)
		case station.AlreadyCollected:
			fmt.Printf("%s is already in your collection\n", st.Name)
		}
		return nil
	},
}

// remove command
var removeCmd = &cobra.Command{
	Use:   "remove STATION_ID",
	Short: "Remove a station from your collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, err := a.Remove(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		switch outcome {
		case station.Removed:
			fmt.Println("Removed from collection")
		case station.NotFound:
			fmt.Println("Station is not in your collection")
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your collection, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Collection(cmd.Context())
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("Your collection is empty.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-40s  class %d  %3d pts\n",
				e.Timestamp.Format("2006-01-02 15:04"),
				e.Station.Name,
				e.Station.PriceClass,
				e.Station.PointValue,
			)
		}
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View collection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Stations:     %d\n", stats.TotalStations)
		fmt.Printf("Points:       %d\n", stats.TotalPoints)
		fmt.Printf("Level:        %s\n", stats.Level)
		fmt.Printf("This month:   %d\n", stats.StationsThisMonth)
		fmt.Printf("Month streak: %d\n", stats.MonthStreak)
		fmt.Printf("Main stations: %d/%d\n",
			stats.MainStationStats.Collected, stats.MainStationStats.Total)

		fmt.Println("\nPrice classes:")
		for tier := 1; tier <= 7; tier++ {
			s := stats.PriceClassStats[tier]
			fmt.Printf("  class %d: %d/%d\n", tier, s.Collected, s.Total)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		if port == 0 {
			port = cfg.Server.Port
		}

		a, err := app.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		if result := a.Initialize(cmd.Context()); result.Err != nil {
			return fmt.Errorf("initialization failed: %w", result.Err)
		}

		srv := server.New(a.Service(), a.Logger(), port)
		return srv.ListenAndServe()
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write an encrypted backup of your collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase(true)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Export(cmd.Context(), args[0], passphrase); err != nil {
			return err
		}

		fmt.Printf("Collection exported to %s\n", args[0])
		return nil
	},
}

// restore-backup command
var restoreBackupCmd = &cobra.Command{
	Use:   "restore-backup FILE",
	Short: "Replace your collection with an encrypted backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase(false)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.RestoreBackup(cmd.Context(), args[0], passphrase)
		if err != nil {
			return err
		}

		fmt.Printf("Restored %d stations\n", count)
		return nil
	},
}

// reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the local database (catalog and collection)",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("reset deletes your collection; re-run with --force to confirm")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ResetDatabase(); err != nil {
			return err
		}

		fmt.Println("Database deleted. Run 'bahnhofjaeger init' to start over.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("limit", "n", 0, "Maximum number of results")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port for the HTTP API")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(restoreBackupCmd)
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("force", false, "Confirm deletion")
}
