package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	cashrepo "backoffice/internal/cash/infrastructure/postgres"
	"backoffice/internal/config"
	"backoffice/internal/logger"
	"backoffice/internal/reconcile"
)

var (
	reconcileYear   int
	reconcileLimit  int
	reconcileOutDir string
	reconcileStrict bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check reference sequences and register balances, writing CSV reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if _, err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			return fmt.Errorf("logger setup: %w", err)
		}
		log := logger.WithComponent("reconcile")

		year := reconcileYear
		if year == 0 {
			location, err := cfg.Location()
			if err != nil {
				return err
			}
			year = time.Now().In(location).Year()
		}
		if err := os.MkdirAll(reconcileOutDir, 0o755); err != nil {
			return fmt.Errorf("create out dir: %w", err)
		}

		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer db.Close()

		runner, err := reconcile.NewRunner(
			reconcile.NewPostgresSequences(db),
			cashrepo.NewRegisterStore(db),
			cashrepo.NewLedger(db),
		)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		sequences, err := runner.Sequences(ctx, year)
		if err != nil {
			return fmt.Errorf("load sequences: %w", err)
		}
		registers, err := runner.Registers(ctx, reconcileLimit)
		if err != nil {
			return fmt.Errorf("load registers: %w", err)
		}

		if err := writeReport(filepath.Join(reconcileOutDir, "sequences.csv"), func(f *os.File) error {
			return reconcile.WriteSequencesCSV(f, sequences)
		}); err != nil {
			return err
		}
		if err := writeReport(filepath.Join(reconcileOutDir, "registers.csv"), func(f *os.File) error {
			return reconcile.WriteRegistersCSV(f, registers)
		}); err != nil {
			return err
		}

		problems := 0
		for _, row := range sequences {
			switch row.Status {
			case reconcile.StatusOK, reconcile.StatusCounterAhead:
			default:
				problems++
				log.Warn().Str("kind", string(row.Kind)).Int("year", row.Year).Str("status", row.Status).Ints("missing", row.Missing).Msg("sequence mismatch")
			}
		}
		for _, row := range registers {
			if row.Status == reconcile.StatusDrift {
				problems++
				log.Warn().Int64("register_id", row.RegisterID).Str("difference", row.Difference.StringFixed(2)).Msg("register drift")
			}
		}
		log.Info().
			Int("year", year).
			Int("sequences", len(sequences)).
			Int("registers", len(registers)).
			Int("problems", problems).
			Str("out", reconcileOutDir).
			Msg("reconciliation written")

		if reconcileStrict && problems > 0 {
			return fmt.Errorf("reconcile: %d problem(s) found", problems)
		}
		return nil
	},
}

func writeReport(path string, write func(f *os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileYear, "year", 0, "reference year to check (default: current year)")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "registers", 31, "number of most recent registers to check")
	reconcileCmd.Flags().StringVar(&reconcileOutDir, "out", "./out", "output directory")
	reconcileCmd.Flags().BoolVar(&reconcileStrict, "strict", false, "exit non-zero when a mismatch is found")
	rootCmd.AddCommand(reconcileCmd)
}
