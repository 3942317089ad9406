package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs/heliant"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/database"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/logging"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

const dateLayout = "2006-01-02"

func main() {
	rootCmd := &cobra.Command{
		Use:           "healthflow",
		Short:         "Blood test interpretation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importLabsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log)
			ctx := cmd.Context()

			db, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return database.Migrate(ctx, db.Pool, log)
		},
	}
}

func importLabsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-labs",
		Short: "Import blood test results for one patient from the hospital LIS",
		RunE: func(cmd *cobra.Command, args []string) error {
			userFlag, _ := cmd.Flags().GetString("user")
			patient, _ := cmd.Flags().GetString("patient")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")

			userID, err := types.ParseID(userFlag)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			if patient == "" {
				return fmt.Errorf("--patient is required")
			}
			from, to, err := parseWindow(fromFlag, toFlag, time.Now().UTC())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cfg, userID, patient, from, to)
		},
	}

	cmd.Flags().String("user", "", "Profile ID that will own the imported results")
	cmd.Flags().String("patient", "", "Patient number in the LIS")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD), defaults to 90 days ago")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD, inclusive), defaults to today")

	return cmd
}

// parseWindow returns [from, to) covering whole days.
func parseWindow(fromFlag, toFlag string, now time.Time) (time.Time, time.Time, error) {
	today := now.Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -90)
	to := today.AddDate(0, 0, 1)

	if fromFlag != "" {
		t, err := time.Parse(dateLayout, fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		from = t
	}
	if toFlag != "" {
		t, err := time.Parse(dateLayout, toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		to = t.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must not be after --to")
	}
	return from, to, nil
}

func runImport(ctx context.Context, cfg *config.Config, userID types.ID, patient string, from, to time.Time) error {
	log := logging.New(cfg.Log)

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := heliant.Open(ctx, cfg.LabImport)
	if err != nil {
		return err
	}
	defer source.Close()

	importer := heliant.NewImporter(source, labs.NewRepository(db.Pool), cfg.LabImport.InstitutionCode, log)
	stats, err := importer.Import(ctx, userID, patient, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d of %d samples (%d rows, %d already present)\n",
		stats.Created, stats.Samples, stats.Rows, stats.Skipped)
	return nil
}
