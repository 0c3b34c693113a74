// Package journal keeps the append-only record of finished contact
// attempts: one JSON line per terminal attempt. The journal is the
// operator's answer to "what happened last night", so writes are
// line-atomic and reads tolerate a torn final line.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer appends terminal attempts to the journal file. Safe for
// concurrent use by parallel orchestrator runs in one process.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	logger *zap.Logger
}

// NewWriter opens (and if needed creates) the journal at path.
func NewWriter(path string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Writer{file: file, logger: logger.Named("journal")}, nil
}

// Record appends one finished attempt. Attempts still in flight are
// refused: the journal records outcomes, not progress.
func (w *Writer) Record(attempt schemas.ContactAttempt) error {
	if !attempt.Status.Terminal() {
		return fmt.Errorf("attempt %s has non-terminal status %q", attempt.ID, attempt.Status)
	}
	line, err := jsonAPI.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
