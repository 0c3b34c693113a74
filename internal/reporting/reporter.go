// Package reporting renders the contact history into report documents:
// every ledger entry plus the attempt statistics the journal holds.
package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
	"github.com/xkilldash9x/doorknock-cli/internal/journal"
)

// Reporter renders one assembled report. Close finalizes the document
// and releases the underlying writer.
type Reporter interface {
	Write(report *Report) error
	Close() error
}

// Report is the assembled contact history.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Stats       Stats                 `json:"stats"`
	Contacts    []schemas.LedgerEntry `json:"contacts"`
}

// Stats aggregates the journaled attempts.
type Stats struct {
	Attempts  int `json:"attempts"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	ByPlatform []PlatformStats `json:"by_platform,omitempty"`
}

// PlatformStats is the per-portal slice of the attempt statistics.
type PlatformStats struct {
	Platform  string `json:"platform"`
	Attempts  int    `json:"attempts"`
	Submitted int    `json:"submitted"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// Build assembles the report from the ledger and the journal. A nil
// journal reader leaves the statistics empty; contacts alone still make
// a useful report.
func Build(ctx context.Context, led schemas.Ledger, reader *journal.Reader) (*Report, error) {
	report := &Report{GeneratedAt: time.Now()}

	entries, err := led.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	report.Contacts = entries

	if reader == nil {
		return report, nil
	}
	attempts, err := reader.Read(ctx, journal.Filter{})
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	report.Stats = tally(attempts)
	return report, nil
}

func tally(attempts []schemas.ContactAttempt) Stats {
	stats := Stats{Attempts: len(attempts)}
	perPlatform := make(map[string]*PlatformStats)

	for _, attempt := range attempts {
		p, ok := perPlatform[attempt.Platform]
		if !ok {
			p = &PlatformStats{Platform: attempt.Platform}
			perPlatform[attempt.Platform] = p
		}
		p.Attempts++
		switch attempt.Status {
		case schemas.StatusSubmitted:
			stats.Submitted++
			p.Submitted++
		case schemas.StatusSkippedDuplicate, schemas.StatusSkippedDryRun:
			stats.Skipped++
			p.Skipped++
		case schemas.StatusFailed:
			stats.Failed++
			p.Failed++
		}
	}

	for _, p := range perPlatform {
		stats.ByPlatform = append(stats.ByPlatform, *p)
	}
	sort.Slice(stats.ByPlatform, func(i, j int) bool {
		return stats.ByPlatform[i].Platform < stats.ByPlatform[j].Platform
	})
	return stats
}

// nopWriteCloser wraps an io.Writer with a no-op Close so stdout is
// never closed underneath the caller.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format. An empty or "stdout"
// output path writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdout := outputPath == "" || outputPath == "stdout"

	if isStdout {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json", "":
		return NewJSONReporter(writer), nil
	case "xml":
		return NewXMLReporter(writer), nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}
