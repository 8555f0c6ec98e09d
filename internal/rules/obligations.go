package rules

import (
	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/logger"
)

// PaperObligationResult lists paper invoices suspected of breaching the
// e-invoicing obligation.
type PaperObligationResult struct {
	// Assessed counts the paper invoices that carried enough data (issue
	// date and taxable base) to be checked at all.
	Assessed int `json:"assessed"`

	Total    int                     `json:"total"`
	Suspects []*models.LedgerInvoice `json:"suspects,omitempty"`
}

// SuspectPaperInvoices flags scoped paper invoices that should have gone
// through the gateway: issued after the obligatory date, taxable base above
// the threshold, and issued by a legal person. Rejected, canceled and
// soft-deleted invoices are out; they never entered the accounting circuit.
//
// Legal person detection prefers the explicit person-type column ('J') and
// falls back to the tax-ID leading-letter heuristic when the column is
// absent.
func (e *Engine) SuspectPaperInvoices(scopedLedger []*models.LedgerInvoice) *PaperObligationResult {
	result := &PaperObligationResult{}

	for _, inv := range scopedLedger {
		if !inv.IsPaper {
			continue
		}
		if inv.IsDeleted() || inv.IsRejected() || inv.IsCanceled() {
			continue
		}
		if !inv.IssueDate.Valid || !inv.TaxableBase.Valid {
			continue
		}
		result.Assessed++

		if !inv.IssueDate.Time.After(e.config.ObligatoryDate) {
			continue
		}
		if inv.TaxableBase.Decimal.Cmp(e.config.PaperThreshold) <= 0 {
			continue
		}
		if !isLegalPerson(inv) {
			continue
		}
		result.Suspects = append(result.Suspects, inv)
	}

	result.Total = len(result.Suspects)

	e.logger.WithFields(logger.Fields{
		"assessed": result.Assessed,
		"suspects": result.Total,
	}).Info("Paper obligation check complete")

	return result
}

func isLegalPerson(inv *models.LedgerInvoice) bool {
	if inv.PersonType.Valid {
		return models.NormalizeID(inv.PersonType.String) == "J"
	}
	if inv.IssuerTaxID.Valid {
		return models.IsLegalPersonTaxID(inv.IssuerTaxID.String)
	}
	return false
}
