package journal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// Filter narrows journal reads. Zero values match everything.
type Filter struct {
	Status   schemas.AttemptStatus
	Platform string
}

// Matches reports whether the attempt passes the filter.
func (f Filter) Matches(attempt schemas.ContactAttempt) bool {
	if f.Status != "" && attempt.Status != f.Status {
		return false
	}
	if f.Platform != "" && attempt.Platform != f.Platform {
		return false
	}
	return true
}

// Reader scans and follows the journal file.
type Reader struct {
	path   string
	logger *zap.Logger
}

func NewReader(path string, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{path: path, logger: logger.Named("journal")}
}

// Read returns every recorded attempt passing the filter, in journal
// order. A missing journal reads as empty: nothing has been attempted
// yet. Lines that fail to decode are counted and skipped; a torn final
// line from a crashed run must not hide the rest of the history.
func (r *Reader) Read(ctx context.Context, filter Filter) ([]schemas.ContactAttempt, error) {
	file, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var attempts []schemas.ContactAttempt
	malformed := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var attempt schemas.ContactAttempt
		if err := jsonAPI.UnmarshalFromString(line, &attempt); err != nil {
			malformed++
			continue
		}
		if filter.Matches(attempt) {
			attempts = append(attempts, attempt)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	if malformed > 0 {
		r.logger.Warn("Skipped malformed journal lines", zap.Int("count", malformed))
	}
	return attempts, nil
}

// Follow replays the journal and then streams entries as they are
// appended, surviving rotation and truncation by re-opening the file.
// It blocks until the context ends or fn returns an error.
func (r *Reader) Follow(ctx context.Context, filter Filter, fn func(schemas.ContactAttempt) error) error {
	// Polling keeps the watcher portable across bind mounts and network
	// filesystems, and its goroutines end with Stop.
	t, err := tail.TailFile(r.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail journal: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				r.logger.Warn("Journal tail error", zap.Error(line.Err))
				continue
			}
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			var attempt schemas.ContactAttempt
			if err := jsonAPI.UnmarshalFromString(text, &attempt); err != nil {
				r.logger.Warn("Skipping malformed journal line", zap.Error(err))
				continue
			}
			if !filter.Matches(attempt) {
				continue
			}
			if err := fn(attempt); err != nil {
				return err
			}
		}
	}
}
