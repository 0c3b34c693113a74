package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter renders the report as a single indented JSON document,
// written when the reporter closes.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	report *Report
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

// Write buffers the report. The last report written wins; rendering
// happens at Close.
func (r *JSONReporter) Write(report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = report
	return nil
}

// Close renders the buffered report and closes the writer. Closing
// without a Write emits an empty report rather than nothing, so
// consumers always get a parseable document.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := r.report
	if report == nil {
		report = &Report{}
	}

	enc := jsonAPI.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(report)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("encoding report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing report output: %w", closeErr)
	}
	return nil
}
