package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/journal"
	"github.com/xkilldash9x/doorknock-cli/internal/observability"
)

// newJournalCmd creates and configures the `journal` command.
func newJournalCmd() *cobra.Command {
	var follow bool
	var status string
	var platformName string

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Print recorded contact attempts",
		Long: `Reads the append-only attempt journal: what was submitted, what was
skipped, what failed and why. --follow tails the journal live.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			return runJournal(ctx, cfg, logger, cmd.OutOrStdout(), follow, status, platformName)
		},
	}

	journalCmd.Flags().BoolVarP(&follow, "follow", "f", false, "replay the journal, then stream new attempts")
	journalCmd.Flags().StringVar(&status, "status", "", "only attempts with this status (submitted, failed, skipped-duplicate, skipped-dry-run)")
	journalCmd.Flags().StringVar(&platformName, "platform", "", "only attempts on this portal")

	return journalCmd
}

// runJournal contains the core, testable logic for journal inspection.
func runJournal(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, follow bool, status, platformName string) error {
	if err := validateStatusFilter(status); err != nil {
		return err
	}
	filter := journal.Filter{
		Status:   schemas.AttemptStatus(status),
		Platform: platformName,
	}
	reader := journal.NewReader(cfg.Journal.Path, logger)

	if follow {
		err := reader.Follow(ctx, filter, func(attempt schemas.ContactAttempt) error {
			printAttempt(out, attempt)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			// Ctrl-C ends the tail; that is the normal way out.
			return nil
		}
		return err
	}

	attempts, err := reader.Read(ctx, filter)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(out, "no attempts recorded")
		return nil
	}
	for _, attempt := range attempts {
		printAttempt(out, attempt)
	}
	return nil
}

func validateStatusFilter(status string) error {
	switch schemas.AttemptStatus(status) {
	case "", schemas.StatusSubmitted, schemas.StatusFailed,
		schemas.StatusSkippedDuplicate, schemas.StatusSkippedDryRun,
		schemas.StatusPending:
		return nil
	default:
		return fmt.Errorf("unknown status %q", status)
	}
}

func printAttempt(out io.Writer, attempt schemas.ContactAttempt) {
	line := fmt.Sprintf("%s  %-17s %-12s %s",
		attempt.FinishedAt.Local().Format(time.RFC3339),
		attempt.Status,
		attempt.Platform,
		attempt.ListingID,
	)
	if attempt.LastError != "" {
		line += "  " + attempt.LastError
	}
	fmt.Fprintln(out, line)
}
