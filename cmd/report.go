package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/journal"
	"github.com/xkilldash9x/doorknock-cli/internal/ledger"
	"github.com/xkilldash9x/doorknock-cli/internal/observability"
	"github.com/xkilldash9x/doorknock-cli/internal/reporting"
)

// newReportCmd creates and configures the `report` command.
func newReportCmd() *cobra.Command {
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Export the contact history as a report",
		Long: `Assembles every ledger entry and the journaled attempt statistics
into one document, as indented JSON or XML.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			return runReport(ctx, cfg, logger, format, outputPath)
		},
	}

	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path; stdout when unset")
	reportCmd.Flags().StringVarP(&format, "format", "f", "json", "report format: 'json' or 'xml'")

	return reportCmd
}

// runReport contains the core, testable logic for report generation.
func runReport(ctx context.Context, cfg *config.Config, logger *zap.Logger, format, outputPath string) error {
	led, err := ledger.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening contact ledger: %w", err)
	}
	defer led.Close()

	report, err := reporting.Build(ctx, led, journal.NewReader(cfg.Journal.Path, logger))
	if err != nil {
		return err
	}

	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return err
	}
	if err := reporter.Write(report); err != nil {
		reporter.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return err
	}

	if outputPath != "" && outputPath != "stdout" {
		logger.Info("Report written",
			zap.String("path", outputPath),
			zap.Int("contacts", len(report.Contacts)),
			zap.Int("attempts", report.Stats.Attempts),
		)
	}
	return nil
}
