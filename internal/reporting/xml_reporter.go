package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// XMLReporter renders the report as an indented XML document, written
// when the reporter closes.
type XMLReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	report *Report
}

func NewXMLReporter(writer io.WriteCloser) *XMLReporter {
	return &XMLReporter{writer: writer}
}

// Write buffers the report. The last report written wins.
func (r *XMLReporter) Write(report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = report
	return nil
}

// Close renders the buffered report and closes the writer.
func (r *XMLReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := r.report
	if report == nil {
		report = &Report{}
	}

	doc := buildDocument(report)
	doc.Indent(2)
	_, encodeErr := doc.WriteTo(r.writer)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("encoding report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing report output: %w", closeErr)
	}
	return nil
}

func buildDocument(report *Report) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("contact-report")
	root.CreateAttr("generated-at", report.GeneratedAt.UTC().Format(time.RFC3339))

	stats := root.CreateElement("stats")
	stats.CreateAttr("attempts", strconv.Itoa(report.Stats.Attempts))
	stats.CreateAttr("submitted", strconv.Itoa(report.Stats.Submitted))
	stats.CreateAttr("failed", strconv.Itoa(report.Stats.Failed))
	stats.CreateAttr("skipped", strconv.Itoa(report.Stats.Skipped))
	for _, p := range report.Stats.ByPlatform {
		el := stats.CreateElement("platform")
		el.CreateAttr("name", p.Platform)
		el.CreateAttr("attempts", strconv.Itoa(p.Attempts))
		el.CreateAttr("submitted", strconv.Itoa(p.Submitted))
		el.CreateAttr("failed", strconv.Itoa(p.Failed))
		el.CreateAttr("skipped", strconv.Itoa(p.Skipped))
	}

	contacts := root.CreateElement("contacts")
	contacts.CreateAttr("count", strconv.Itoa(len(report.Contacts)))
	for _, entry := range report.Contacts {
		el := contacts.CreateElement("contact")
		el.CreateAttr("listing-id", entry.ListingID)
		el.CreateAttr("platform", entry.Platform)
		el.CreateAttr("contacted-at", entry.ContactedAt.UTC().Format(time.RFC3339))
	}
	return doc
}
