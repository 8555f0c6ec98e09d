// Package config assembles the component configurations from CLI inputs.
package config

import (
	"fmt"
	"time"

	"rcf-audit-service/internal/reconciler"
	"rcf-audit-service/internal/reporter"
	"rcf-audit-service/internal/rules"

	"github.com/shopspring/decimal"
)

// CreateSessionConfig creates the audit session configuration.
func CreateSessionConfig(auditedYear, maxRows int) *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.AuditedYear = auditedYear
	config.MaxRows = maxRows
	return config
}

// CreateRulesConfig creates the rule engine configuration, overriding the
// regulatory defaults with any CLI-provided values.
func CreateRulesConfig(validationDate, obligatoryDate string, paperThreshold float64) (*rules.Config, error) {
	config := rules.DefaultConfig()

	if validationDate != "" {
		t, err := time.Parse("2006-01-02", validationDate)
		if err != nil {
			return nil, fmt.Errorf("invalid validation date %q: %w", validationDate, err)
		}
		config.ValidationEffectiveDate = t
	}

	if obligatoryDate != "" {
		t, err := time.Parse("2006-01-02", obligatoryDate)
		if err != nil {
			return nil, fmt.Errorf("invalid obligatory date %q: %w", obligatoryDate, err)
		}
		config.ObligatoryDate = t
	}

	if paperThreshold > 0 {
		config.PaperThreshold = decimal.NewFromFloat(paperThreshold)
	}

	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output
// format.
func CreateReportConfig(format string, includeDetails bool) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.IncludeInvoiceDetails = includeDetails

	switch format {
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		config.Format = reporter.FormatConsole
	}

	return config
}
