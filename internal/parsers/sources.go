package parsers

import (
	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/logger"
)

// canonicalSet returns the canonical fields of a category as a lookup set,
// used to split mapped columns from passthrough columns.
func canonicalSet(category Category) map[string]bool {
	set := make(map[string]bool)
	for _, field := range CanonicalFields(category) {
		set[field] = true
	}
	return set
}

// extraColumns collects the cells of all non-canonical columns of a row,
// keyed by original header name. Empty cells are dropped.
func extraColumns(t *Table, row []string, canonical map[string]bool) map[string]string {
	var extra map[string]string
	for col, header := range t.Headers {
		if canonical[header] || col >= len(row) {
			continue
		}
		value := row[col]
		if models.IsNullMarker(value) {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[header] = value
	}
	return extra
}

// ParseLedger converts a normalized ledger table into invoice records. Every
// field is coerced independently; a malformed cell degrades that field, never
// the row.
func ParseLedger(t *Table) []*models.LedgerInvoice {
	index := t.HeaderIndex()
	canonical := canonicalSet(CategoryLedger)

	invoices := make([]*models.LedgerInvoice, 0, len(t.Rows))
	for _, row := range t.Rows {
		invoice := &models.LedgerInvoice{
			LedgerID:         models.ParseNullString(t.Cell(row, index, FieldLedgerID)),
			GatewayRef:       models.ParseNullString(t.Cell(row, index, FieldGatewayRef)),
			IssueDate:        models.ParseNullTime(t.Cell(row, index, FieldIssueDate)),
			AnnotationDate:   models.ParseNullTime(t.Cell(row, index, FieldAnnotationDate)),
			IssuerTaxID:      models.ParseNullString(t.Cell(row, index, FieldIssuerTaxID)),
			IssuerName:       models.ParseNullString(t.Cell(row, index, FieldIssuerName)),
			InvoiceNumber:    models.ParseNullString(t.Cell(row, index, FieldInvoiceNumber)),
			Series:           models.ParseNullString(t.Cell(row, index, FieldSeries)),
			TotalAmount:      models.ParseNullDecimal(t.Cell(row, index, FieldTotalAmount)),
			Currency:         models.ParseNullString(t.Cell(row, index, FieldCurrency)),
			TaxableBase:      models.ParseNullDecimal(t.Cell(row, index, FieldTaxableBase)),
			FiscalYear:       models.ParseNullYear(t.Cell(row, index, FieldFiscalYear)),
			PersonType:       models.ParseNullString(t.Cell(row, index, FieldPersonType)),
			State:            models.ParseNullString(t.Cell(row, index, FieldState)),
			AccountingOffice: models.ParseNullString(t.Cell(row, index, FieldAccountingOffice)),
			ManagingBody:     models.ParseNullString(t.Cell(row, index, FieldManagingBody)),
			ProcessingUnit:   models.ParseNullString(t.Cell(row, index, FieldProcessingUnit)),
			RejectionMotive:  models.ParseNullString(t.Cell(row, index, FieldRejectionMotive)),
			Extra:            extraColumns(t, row, canonical),
		}
		invoice.IsPaper = models.IsPaperRef(invoice.GatewayRef)
		invoices = append(invoices, invoice)
	}

	logger.GetGlobalLogger().WithComponent("parsers").WithFields(logger.Fields{
		"source": t.Source,
		"rows":   len(invoices),
	}).Info("Parsed ledger invoices")

	return invoices
}

// ParseGateway converts a normalized gateway registry table into gateway
// invoice records.
func ParseGateway(t *Table) []*models.GatewayInvoice {
	index := t.HeaderIndex()
	canonical := canonicalSet(CategoryGateway)

	invoices := make([]*models.GatewayInvoice, 0, len(t.Rows))
	for _, row := range t.Rows {
		invoices = append(invoices, &models.GatewayInvoice{
			RegistrationID:   models.ParseNullString(t.Cell(row, index, FieldRegistrationID)),
			RegistrationDate: models.ParseNullTime(t.Cell(row, index, FieldRegistrationDate)),
			IssuerTaxID:      models.ParseNullString(t.Cell(row, index, FieldIssuerTaxID)),
			PayeeName:        models.ParseNullString(t.Cell(row, index, FieldPayeeName)),
			InvoiceNumber:    models.ParseNullString(t.Cell(row, index, FieldInvoiceNumber)),
			Series:           models.ParseNullString(t.Cell(row, index, FieldSeries)),
			Amount:           models.ParseNullDecimal(t.Cell(row, index, FieldAmount)),
			Currency:         models.ParseNullString(t.Cell(row, index, FieldCurrency)),
			AccountingOffice: models.ParseNullString(t.Cell(row, index, FieldAccountingOffice)),
			ManagingBody:     models.ParseNullString(t.Cell(row, index, FieldManagingBody)),
			ProcessingUnit:   models.ParseNullString(t.Cell(row, index, FieldProcessingUnit)),
			Extra:            extraColumns(t, row, canonical),
		})
	}

	logger.GetGlobalLogger().WithComponent("parsers").WithFields(logger.Fields{
		"source": t.Source,
		"rows":   len(invoices),
	}).Info("Parsed gateway registry")

	return invoices
}

// ParseCancellations converts a normalized cancellation request table into
// cancellation records.
func ParseCancellations(t *Table) []*models.CancellationRequest {
	index := t.HeaderIndex()
	canonical := canonicalSet(CategoryCancellations)

	requests := make([]*models.CancellationRequest, 0, len(t.Rows))
	for _, row := range t.Rows {
		requests = append(requests, &models.CancellationRequest{
			RegistrationID: models.ParseNullString(t.Cell(row, index, FieldRegistrationID)),
			RequestDate:    models.ParseNullTime(t.Cell(row, index, FieldRequestDate)),
			Comment:        models.ParseNullString(t.Cell(row, index, FieldComment)),
			Extra:          extraColumns(t, row, canonical),
		})
	}

	logger.GetGlobalLogger().WithComponent("parsers").WithFields(logger.Fields{
		"source": t.Source,
		"rows":   len(requests),
	}).Info("Parsed cancellation requests")

	return requests
}

// ParseStateHistory converts a normalized state-change history table into
// state-change events.
func ParseStateHistory(t *Table) []*models.StateChangeEvent {
	index := t.HeaderIndex()
	canonical := canonicalSet(CategoryStateHistory)

	events := make([]*models.StateChangeEvent, 0, len(t.Rows))
	for _, row := range t.Rows {
		events = append(events, &models.StateChangeEvent{
			RegistrationID: models.ParseNullString(t.Cell(row, index, FieldRegistrationID)),
			StateCode:      models.ParseNullString(t.Cell(row, index, FieldStateCode)),
			InsertedAt:     models.ParseNullTime(t.Cell(row, index, FieldInsertedAt)),
			Extra:          extraColumns(t, row, canonical),
		})
	}

	logger.GetGlobalLogger().WithComponent("parsers").WithFields(logger.Fields{
		"source": t.Source,
		"rows":   len(events),
	}).Info("Parsed state-change history")

	return events
}

// LoadLedger loads, normalizes and parses a ledger workbook in one call. The
// second return reports whether the source carries a gateway reference column
// at all; without it every row classifies as paper and the gateway
// reconciliation cannot be computed.
func LoadLedger(path string, maxRows int) ([]*models.LedgerInvoice, bool, error) {
	t, err := LoadTable(path, maxRows)
	if err != nil {
		return nil, false, err
	}
	t = Normalize(t, CategoryLedger)
	return ParseLedger(t), t.HasField(FieldGatewayRef), nil
}

// LoadGateway loads, normalizes and parses a gateway registry workbook.
func LoadGateway(path string, maxRows int) ([]*models.GatewayInvoice, error) {
	t, err := LoadTable(path, maxRows)
	if err != nil {
		return nil, err
	}
	return ParseGateway(Normalize(t, CategoryGateway)), nil
}

// LoadCancellations loads, normalizes and parses a cancellation request
// workbook.
func LoadCancellations(path string, maxRows int) ([]*models.CancellationRequest, error) {
	t, err := LoadTable(path, maxRows)
	if err != nil {
		return nil, err
	}
	return ParseCancellations(Normalize(t, CategoryCancellations)), nil
}

// LoadStateHistory loads, normalizes and parses a state-change history
// workbook.
func LoadStateHistory(path string, maxRows int) ([]*models.StateChangeEvent, error) {
	t, err := LoadTable(path, maxRows)
	if err != nil {
		return nil, err
	}
	return ParseStateHistory(Normalize(t, CategoryStateHistory)), nil
}
