// Package reporter renders audit results for the three consumer surfaces:
// console output for the auditor, JSON for programmatic consumption, CSV for
// spreadsheet review.
//
// Sections that could not be computed are rendered as unavailable, never as a
// clean zero; a reader must be able to tell "no retained invoices" from
// "retention could not be determined".
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"rcf-audit-service/internal/lifecycle"
	"rcf-audit-service/internal/reconciler"
	"rcf-audit-service/internal/rules"
	"rcf-audit-service/internal/scoper"
	"rcf-audit-service/internal/timing"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// AuditReport is the complete assembled result of one audit run.
type AuditReport struct {
	EntityName  string    `json:"entity_name,omitempty"`
	AuditedYear int       `json:"audited_year"`
	GeneratedAt time.Time `json:"generated_at"`

	// Dataset overview.
	LedgerTotal     int `json:"ledger_total"`
	ScopedLedger    int `json:"scoped_ledger"`
	ScopedGateway   int `json:"scoped_gateway"`
	PaperCount      int `json:"paper_count"`
	ElectronicCount int `json:"electronic_count"`
	DeletedCount    int `json:"deleted_count"`

	Retained         *reconciler.RetainedResult       `json:"retained"`
	Cancellations    *reconciler.CancellationAnalysis `json:"cancellations"`
	Timing           *timing.Result                   `json:"timing"`
	Compliance       *rules.ComplianceResult          `json:"compliance"`
	Rejections       *rules.RejectionAnalysis         `json:"rejections"`
	PaperObligations *rules.PaperObligationResult     `json:"paper_obligations"`
	States           *lifecycle.DistributionResult    `json:"states"`
	Suppliers        []scoper.SupplierStat            `json:"suppliers"`
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeInvoiceDetails controls whether retained invoices, anomalies
	// and suspects are listed row by row.
	IncludeInvoiceDetails bool `json:"include_invoice_details"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                FormatConsole,
		IncludeInvoiceDetails: true,
		CSVDelimiter:          ',',
		CSVHeaders:            true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders audit reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator with the given configuration.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the report to the writer.
func (rg *ReportGenerator) GenerateReport(report *AuditReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("audit report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *AuditReport, writer io.Writer) error {
	fmt.Fprintf(writer, "INVOICE REGISTRY AUDIT REPORT\n")
	if report.EntityName != "" {
		fmt.Fprintf(writer, "Entity: %s\n", report.EntityName)
	}
	fmt.Fprintf(writer, "Audited year: %d\n", report.AuditedYear)
	fmt.Fprintf(writer, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(writer, "=== DATASET ===\n")
	fmt.Fprintf(writer, "Ledger rows (total / in scope):   %d / %d\n", report.LedgerTotal, report.ScopedLedger)
	fmt.Fprintf(writer, "Gateway rows in scope:            %d\n", report.ScopedGateway)
	fmt.Fprintf(writer, "Paper / electronic:               %d / %d\n", report.PaperCount, report.ElectronicCount)
	fmt.Fprintf(writer, "Soft-deleted:                     %d\n\n", report.DeletedCount)

	rg.printRetained(report, writer)
	rg.printTiming(report, writer)
	rg.printCompliance(report, writer)
	rg.printRejections(report, writer)
	rg.printPaperObligations(report, writer)
	rg.printCancellations(report, writer)
	rg.printStates(report, writer)
	rg.printSuppliers(report, writer)

	return nil
}

func (rg *ReportGenerator) printRetained(report *AuditReport, writer io.Writer) {
	fmt.Fprintf(writer, "=== RETAINED AT GATEWAY ===\n")
	r := report.Retained
	if r == nil || !r.Available {
		fmt.Fprintf(writer, "Not available: gateway registry carries no usable identifiers\n\n")
		return
	}
	fmt.Fprintf(writer, "Invoices registered at the gateway but never annotated: %d\n", r.Total)
	if r.Unidentifiable > 0 {
		fmt.Fprintf(writer, "Gateway rows skipped for missing identifier: %d\n", r.Unidentifiable)
	}
	if rg.config.IncludeInvoiceDetails {
		for _, inv := range r.Invoices {
			fmt.Fprintf(writer, "  %-20s %-12s %12s  %s\n",
				inv.RegistrationID.String,
				inv.RegistrationDate.Time.Format("2006-01-02"),
				inv.Amount.Decimal.StringFixed(2),
				inv.PayeeName.String)
		}
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printTiming(report *AuditReport, writer io.Writer) {
	fmt.Fprintf(writer, "=== ANNOTATION LATENCY ===\n")
	t := report.Timing
	if t == nil || !t.Available {
		fmt.Fprintf(writer, "Not available: sources carry no usable timestamps\n\n")
		return
	}
	fmt.Fprintf(writer, "Measured pairs:   %d (valid %d, anomalies %d)\n",
		t.MatchedCount, t.ValidCount, t.AnomalyCount)
	if t.ValidCount > 0 {
		fmt.Fprintf(writer, "Latency minutes:  mean %.1f, median %.1f, min %.1f, max %.1f\n",
			t.MeanMinutes, t.MedianMinutes, t.MinMinutes, t.MaxMinutes)
		fmt.Fprintf(writer, "Monthly:\n")
		for _, m := range t.Monthly {
			fmt.Fprintf(writer, "  %s  count=%-5d mean=%.1f median=%.1f\n",
				m.Month, m.Count, m.MeanMinutes, m.MedianMinutes)
		}
	}
	if t.AnomalyCount > 0 && rg.config.IncludeInvoiceDetails {
		fmt.Fprintf(writer, "Anomalies (annotation precedes registration):\n")
		for _, a := range t.Anomalies {
			fmt.Fprintf(writer, "  %-20s %.1f minutes\n", a.RegistrationID, a.LatencyMinutes)
		}
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printCompliance(report *AuditReport, writer io.Writer) {
	fmt.Fprintf(writer, "=== COMPLIANCE CLAUSES ===\n")
	c := report.Compliance
	if c == nil || !c.Available {
		fmt.Fprintf(writer, "Not available: no clause mapping loaded\n\n")
		return
	}
	fmt.Fprintf(writer, "Validated population: %d invoices\n", c.PopulationSize)
	fmt.Fprintf(writer, "Overall compliance:   %.2f%%\n", c.CompliancePct)
	for _, stat := range c.Clauses {
		fmt.Fprintf(writer, "  %-3s %-42s %5d  (%.2f%%)\n",
			stat.Clause, stat.Name, stat.Count, stat.PctOfPopulation)
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printRejections(report *AuditReport, writer io.Writer) {
	r := report.Rejections
	if r == nil {
		return
	}
	fmt.Fprintf(writer, "=== REJECTION MOTIVES ===\n")
	fmt.Fprintf(writer, "Rejected or deleted invoices: %d (without motive: %d)\n",
		r.Total, r.WithoutMotive)
	for _, m := range r.Motives {
		fmt.Fprintf(writer, "  %5d  %s\n", m.Count, m.Motive)
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printPaperObligations(report *AuditReport, writer io.Writer) {
	p := report.PaperObligations
	if p == nil {
		return
	}
	fmt.Fprintf(writer, "=== PAPER OBLIGATION SUSPECTS ===\n")
	fmt.Fprintf(writer, "Assessed paper invoices: %d, suspects: %d\n", p.Assessed, p.Total)
	if rg.config.IncludeInvoiceDetails {
		for _, inv := range p.Suspects {
			fmt.Fprintf(writer, "  %-15s %-12s %12s  %s\n",
				inv.IssuerTaxID.String,
				inv.IssueDate.Time.Format("2006-01-02"),
				inv.TaxableBase.Decimal.StringFixed(2),
				inv.IssuerName.String)
		}
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printCancellations(report *AuditReport, writer io.Writer) {
	fmt.Fprintf(writer, "=== CANCELLATION REQUESTS ===\n")
	c := report.Cancellations
	if c == nil || !c.Available {
		fmt.Fprintf(writer, "Not available: no cancellation source provided\n\n")
		return
	}
	fmt.Fprintf(writer, "Total: %d, referencing a ledger annotation: %d, with comment: %d\n\n",
		c.Total, c.RegisteredInLedger, c.WithComment)
}

func (rg *ReportGenerator) printStates(report *AuditReport, writer io.Writer) {
	fmt.Fprintf(writer, "=== GATEWAY STATE DISTRIBUTION ===\n")
	s := report.States
	if s == nil || !s.Available {
		fmt.Fprintf(writer, "Not available: no state-history source provided\n\n")
		return
	}
	fmt.Fprintf(writer, "Events: %d (without code: %d)\n", s.Total, s.NoCode)
	for _, state := range s.States {
		fmt.Fprintf(writer, "  %-6s %-28s %d\n", state.Code, state.Label, state.Count)
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) printSuppliers(report *AuditReport, writer io.Writer) {
	if len(report.Suppliers) == 0 {
		return
	}
	fmt.Fprintf(writer, "=== TOP SUPPLIERS ===\n")
	for i, s := range report.Suppliers {
		fmt.Fprintf(writer, "  %2d. %-12s %-32s %5d invoices %14s\n",
			i+1, s.TaxID, s.Name, s.InvoiceCount, s.TotalAmount.StringFixed(2))
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) generateJSONReport(report *AuditReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// generateCSVReport writes a section-tagged flat file: every row starts with
// the section name so one file can carry the whole report.
func (rg *ReportGenerator) generateCSVReport(report *AuditReport, writer io.Writer) error {
	w := csv.NewWriter(writer)
	w.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := w.Write([]string{"section", "key", "value", "detail"}); err != nil {
			return err
		}
	}

	rows := [][]string{
		{"dataset", "audited_year", strconv.Itoa(report.AuditedYear), ""},
		{"dataset", "ledger_total", strconv.Itoa(report.LedgerTotal), ""},
		{"dataset", "scoped_ledger", strconv.Itoa(report.ScopedLedger), ""},
		{"dataset", "scoped_gateway", strconv.Itoa(report.ScopedGateway), ""},
		{"dataset", "paper", strconv.Itoa(report.PaperCount), ""},
		{"dataset", "electronic", strconv.Itoa(report.ElectronicCount), ""},
		{"dataset", "deleted", strconv.Itoa(report.DeletedCount), ""},
	}

	if r := report.Retained; r != nil && r.Available {
		rows = append(rows, []string{"retained", "total", strconv.Itoa(r.Total), ""})
		for _, inv := range r.Invoices {
			rows = append(rows, []string{"retained", "invoice",
				inv.RegistrationID.String, inv.PayeeName.String})
		}
	} else {
		rows = append(rows, []string{"retained", "available", "false", ""})
	}

	if t := report.Timing; t != nil && t.Available {
		rows = append(rows,
			[]string{"timing", "valid", strconv.Itoa(t.ValidCount), ""},
			[]string{"timing", "anomalies", strconv.Itoa(t.AnomalyCount), ""},
			[]string{"timing", "mean_minutes", fmt.Sprintf("%.2f", t.MeanMinutes), ""},
			[]string{"timing", "median_minutes", fmt.Sprintf("%.2f", t.MedianMinutes), ""},
		)
	} else {
		rows = append(rows, []string{"timing", "available", "false", ""})
	}

	if c := report.Compliance; c != nil && c.Available {
		rows = append(rows,
			[]string{"compliance", "population", strconv.Itoa(c.PopulationSize), ""},
			[]string{"compliance", "compliance_pct", fmt.Sprintf("%.2f", c.CompliancePct), ""},
		)
		for _, stat := range c.Clauses {
			rows = append(rows, []string{"compliance", "clause_" + stat.Clause,
				strconv.Itoa(stat.Count), stat.Name})
		}
	} else {
		rows = append(rows, []string{"compliance", "available", "false", ""})
	}

	if s := report.States; s != nil && s.Available {
		for _, state := range s.States {
			rows = append(rows, []string{"states", state.Code,
				strconv.Itoa(state.Count), state.Label})
		}
	}

	for _, supplier := range report.Suppliers {
		rows = append(rows, []string{"suppliers", supplier.TaxID,
			supplier.TotalAmount.StringFixed(2), supplier.Name})
	}

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
