// Package scoper restricts the four record sets to the audited fiscal period
// and classifies ledger invoices as paper or electronic.
//
// Scoping is per-source and independent: the ledger is scoped by fiscal year
// with date fallbacks, the other three sources by their own date field. Rows
// with no usable scoping value are kept; dropping them silently would hide
// data quality problems from the report. Scoping the same set twice yields
// the same set.
package scoper

import (
	"sort"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/errors"
	"rcf-audit-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config holds the scoping parameters.
type Config struct {
	// AuditedYear is the fiscal year Y the audit runs over.
	AuditedYear int `json:"audited_year"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AuditedYear < 2000 || c.AuditedYear > 2100 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "audited_year", c.AuditedYear, nil).
			WithSuggestion("pass a four-digit fiscal year, e.g. --year 2025")
	}
	return nil
}

// Scoper applies period scoping and paper/electronic classification.
type Scoper struct {
	config *Config
	logger logger.Logger
}

// New creates a Scoper with the given configuration.
func New(config *Config) (*Scoper, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "scoper config", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scoper{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("scoper"),
	}, nil
}

// Classify derives IsPaper for every invoice from its gateway reference.
// The parser already sets the flag at load time; re-deriving here keeps the
// scoper authoritative when invoices are constructed elsewhere.
func (s *Scoper) Classify(invoices []*models.LedgerInvoice) {
	paper := 0
	for _, inv := range invoices {
		inv.IsPaper = models.IsPaperRef(inv.GatewayRef)
		if inv.IsPaper {
			paper++
		}
	}
	s.logger.WithFields(logger.Fields{
		"total":      len(invoices),
		"paper":      paper,
		"electronic": len(invoices) - paper,
	}).Info("Classified ledger invoices")
}

// inLedgerScope applies the ledger scoping rule for audited year Y: fiscal
// year in {Y, Y-1} when present, else annotation year == Y, else issue year
// == Y, else keep.
func (s *Scoper) inLedgerScope(inv *models.LedgerInvoice) bool {
	year := s.config.AuditedYear
	if inv.FiscalYear.Valid {
		return inv.FiscalYear.Int == year || inv.FiscalYear.Int == year-1
	}
	if inv.AnnotationDate.Valid {
		return inv.AnnotationDate.Time.Year() == year
	}
	if inv.IssueDate.Valid {
		return inv.IssueDate.Time.Year() == year
	}
	return true
}

// ScopeLedger returns the ledger invoices belonging to the audited period,
// preserving input order.
func (s *Scoper) ScopeLedger(invoices []*models.LedgerInvoice) []*models.LedgerInvoice {
	scoped := make([]*models.LedgerInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if s.inLedgerScope(inv) {
			scoped = append(scoped, inv)
		}
	}
	s.logger.WithFields(logger.Fields{
		"input":  len(invoices),
		"scoped": len(scoped),
		"year":   s.config.AuditedYear,
	}).Info("Scoped ledger")
	return scoped
}

// ScopeGateway returns the gateway invoices registered in the audited year.
// Rows without a registration date are kept.
func (s *Scoper) ScopeGateway(invoices []*models.GatewayInvoice) []*models.GatewayInvoice {
	scoped := make([]*models.GatewayInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.RegistrationDate.Valid || inv.RegistrationDate.Time.Year() == s.config.AuditedYear {
			scoped = append(scoped, inv)
		}
	}
	s.logger.WithFields(logger.Fields{
		"input":  len(invoices),
		"scoped": len(scoped),
	}).Info("Scoped gateway registry")
	return scoped
}

// ScopeCancellations returns the cancellation requests dated in the audited
// year. Rows without a request date are kept.
func (s *Scoper) ScopeCancellations(requests []*models.CancellationRequest) []*models.CancellationRequest {
	scoped := make([]*models.CancellationRequest, 0, len(requests))
	for _, req := range requests {
		if !req.RequestDate.Valid || req.RequestDate.Time.Year() == s.config.AuditedYear {
			scoped = append(scoped, req)
		}
	}
	return scoped
}

// ScopeStateHistory returns the state-change events inserted in the audited
// year. Rows without a timestamp are kept.
func (s *Scoper) ScopeStateHistory(events []*models.StateChangeEvent) []*models.StateChangeEvent {
	scoped := make([]*models.StateChangeEvent, 0, len(events))
	for _, event := range events {
		if !event.InsertedAt.Valid || event.InsertedAt.Time.Year() == s.config.AuditedYear {
			scoped = append(scoped, event)
		}
	}
	return scoped
}

// BuildGatewayRefIndex indexes the UNSCOPED ledger by normalized gateway
// reference. Retained-invoice detection must see every annotation ever made,
// not just the audited period, so an invoice annotated under an earlier
// fiscal year still counts as present. First occurrence wins.
func BuildGatewayRefIndex(invoices []*models.LedgerInvoice) map[string]*models.LedgerInvoice {
	index := make(map[string]*models.LedgerInvoice)
	for _, inv := range invoices {
		if models.IsPaperRef(inv.GatewayRef) {
			continue
		}
		key := models.NormalizeID(inv.GatewayRef.String)
		if _, exists := index[key]; !exists {
			index[key] = inv
		}
	}
	return index
}

// ExcludeDeleted filters out soft-deleted invoices. Aggregates use the
// filtered view; the rule engine deliberately does not.
func ExcludeDeleted(invoices []*models.LedgerInvoice) []*models.LedgerInvoice {
	kept := make([]*models.LedgerInvoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.IsDeleted() {
			kept = append(kept, inv)
		}
	}
	return kept
}

// SupplierStat aggregates one issuer's invoices.
type SupplierStat struct {
	TaxID        string          `json:"tax_id"`
	Name         string          `json:"name"`
	InvoiceCount int             `json:"invoice_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// SupplierRanking returns the top-N issuers of the scoped ledger by summed
// total amount, soft-deleted invoices excluded. Ties break by tax ID so the
// ranking is stable across runs.
func (s *Scoper) SupplierRanking(invoices []*models.LedgerInvoice, n int) []SupplierStat {
	byTaxID := make(map[string]*SupplierStat)
	var order []string

	for _, inv := range ExcludeDeleted(invoices) {
		if !inv.IssuerTaxID.Valid {
			continue
		}
		key := models.NormalizeID(inv.IssuerTaxID.String)
		stat, exists := byTaxID[key]
		if !exists {
			stat = &SupplierStat{TaxID: key, TotalAmount: decimal.Zero}
			byTaxID[key] = stat
			order = append(order, key)
		}
		stat.InvoiceCount++
		if inv.TotalAmount.Valid {
			stat.TotalAmount = stat.TotalAmount.Add(inv.TotalAmount.Decimal)
		}
		if stat.Name == "" && inv.IssuerName.Valid {
			stat.Name = inv.IssuerName.String
		}
	}

	ranking := make([]SupplierStat, 0, len(order))
	for _, key := range order {
		ranking = append(ranking, *byTaxID[key])
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		cmp := ranking[i].TotalAmount.Cmp(ranking[j].TotalAmount)
		if cmp != 0 {
			return cmp > 0
		}
		return ranking[i].TaxID < ranking[j].TaxID
	})

	if n > 0 && len(ranking) > n {
		ranking = ranking[:n]
	}
	return ranking
}
