package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/browser"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
	"github.com/xkilldash9x/doorknock-cli/internal/hunter"
	"github.com/xkilldash9x/doorknock-cli/internal/journal"
	"github.com/xkilldash9x/doorknock-cli/internal/ledger"
	"github.com/xkilldash9x/doorknock-cli/internal/observability"
	"github.com/xkilldash9x/doorknock-cli/internal/platform"
	"github.com/xkilldash9x/doorknock-cli/internal/profile"
)

// newContactCmd creates and configures the `contact` command.
func newContactCmd() *cobra.Command {
	var platformName string

	contactCmd := &cobra.Command{
		Use:   "contact [listing-url...]",
		Short: "Submit a contact request for each listing URL",
		Long: `Resolves each URL to its portal, fills the contact form through the
humanoid layer and submits it. Every listing is contacted at most once:
the ledger remembers what was already sent, across runs and machines.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind overrides to their viper keys so flag > env > file > default
			// precedence holds when the config is re-unmarshaled below.
			if err := viper.BindPFlag("contact.dry_run", cmd.Flags().Lookup("dry-run")); err != nil {
				return err
			}
			if err := viper.BindPFlag("hunter.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			return runContact(ctx, cfg, logger, platformName, args)
		},
	}

	contactCmd.Flags().StringVar(&platformName, "platform", "", "restrict the batch to one portal (e.g. 'wg-gesucht')")
	contactCmd.Flags().Bool("dry-run", false, "walk the whole form but withhold the final submission")
	contactCmd.Flags().IntP("concurrency", "j", 2, "concurrent portal lanes (overrides config)")
	contactCmd.Flags().Bool("headless", false, "run the browser headless (overrides config)")

	return contactCmd
}

// runContact wires the batch: ledger, journal, profile, browser, hunter.
func runContact(ctx context.Context, cfg *config.Config, logger *zap.Logger, platformName string, urls []string) error {
	registry, err := resolveRegistry(platformName)
	if err != nil {
		return err
	}

	prof, err := profile.New(cfg.Profile, logger)
	if err != nil {
		return fmt.Errorf("applicant profile: %w", err)
	}

	led, err := ledger.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening contact ledger: %w", err)
	}
	defer led.Close()

	jw, err := journal.NewWriter(cfg.Journal.Path, logger)
	if err != nil {
		return fmt.Errorf("opening attempt journal: %w", err)
	}
	defer func() {
		if err := jw.Close(); err != nil {
			logger.Warn("Journal close failed", zap.Error(err))
		}
	}()

	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		// Shutdown runs on its own clock so a cancelled batch still
		// closes the browser.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown incomplete", zap.Error(err))
		}
	}()

	h, err := hunter.New(hunter.Params{
		Registry: registry,
		Sessions: manager,
		Profile:  prof,
		Ledger:   led,
		Journal:  jw,
		Sink:     &consoleSink{logger: logger},
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	summary, err := h.Hunt(ctx, urls)
	printSummary(summary, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("batch aborted by user signal")
		}
		return err
	}
	return nil
}

// resolveRegistry returns the full portal registry, or one narrowed to
// a single portal when --platform is set.
func resolveRegistry(platformName string) (*platform.Registry, error) {
	registry := platform.DefaultRegistry()
	if platformName == "" {
		return registry, nil
	}
	site, ok := registry.Site(platformName)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q (known: %s)", platformName, strings.Join(registry.Names(), ", "))
	}
	return platform.NewRegistry(site), nil
}

func printSummary(summary hunter.Summary, cfg *config.Config) {
	fmt.Printf("\nBatch complete: %d submitted, %d skipped, %d failed (%d total)\n",
		summary.Submitted, summary.Skipped, summary.Failed, summary.Total())
	if summary.Failed > 0 {
		fmt.Printf("Failed attempts are journaled with snapshots: %s\n", cfg.Journal.Path)
	}
}

// consoleSink surfaces completed contacts on the operator's console.
// Outbound notification channels are deliberately out of scope; the
// event interface is the extension point for them.
type consoleSink struct {
	logger *zap.Logger
}

func (s *consoleSink) ContactCompleted(ctx context.Context, event schemas.ContactEvent) {
	s.logger.Info("Contact confirmed",
		zap.String("platform", event.Platform),
		zap.String("listing_id", event.ListingID),
		zap.String("snapshot", event.SnapshotHandle),
	)
}
