package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"rcf-audit-service/pkg/errors"

	"github.com/shopspring/decimal"
)

func fixture(name string) string {
	return filepath.Join("..", "..", "testdata", name)
}

func TestLoadTableCSV(t *testing.T) {
	table, err := LoadTable(fixture("ledger.csv"), 0)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}

	if len(table.Headers) != 15 {
		t.Errorf("expected 15 headers, got %d", len(table.Headers))
	}
	if len(table.Rows) != 6 {
		t.Errorf("expected 6 rows, got %d", len(table.Rows))
	}
	if table.Headers[0] != "id_fra_rcf" {
		t.Errorf("unexpected first header %q", table.Headers[0])
	}
}

func TestLoadTableMissingFile(t *testing.T) {
	_, err := LoadTable(fixture("does_not_exist.csv"), 0)
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	auditErr, ok := errors.AsAuditError(err)
	if !ok {
		t.Fatalf("expected AuditError, got %T", err)
	}
	if auditErr.Code != errors.CodeFileNotFound {
		t.Errorf("expected code %s, got %s", errors.CodeFileNotFound, auditErr.Code)
	}
}

func TestLoadTableRowBudget(t *testing.T) {
	_, err := LoadTable(fixture("ledger.csv"), 2)
	if err == nil {
		t.Fatal("expected row budget error")
	}

	auditErr, ok := errors.AsAuditError(err)
	if !ok {
		t.Fatalf("expected AuditError, got %T", err)
	}
	if auditErr.Code != errors.CodeRowBudgetExceeded {
		t.Errorf("expected code %s, got %s", errors.CodeRowBudgetExceeded, auditErr.Code)
	}
}

func TestNormalizeLedger(t *testing.T) {
	table, err := LoadTable(fixture("ledger.csv"), 0)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}

	normalized := Normalize(table, CategoryLedger)

	for _, field := range []string{
		FieldLedgerID, FieldGatewayRef, FieldIssueDate, FieldAnnotationDate,
		FieldIssuerTaxID, FieldTotalAmount, FieldTaxableBase, FieldFiscalYear,
		FieldState, FieldRejectionMotive,
	} {
		if !normalized.HasField(field) {
			t.Errorf("canonical field %q missing after normalization", field)
		}
	}

	// Unmapped columns keep their source names.
	if !normalized.HasField("observaciones_internas") {
		t.Error("passthrough column observaciones_internas was lost")
	}
	if len(normalized.Headers) != len(table.Headers) {
		t.Errorf("normalization changed column count: %d != %d",
			len(normalized.Headers), len(table.Headers))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	table, err := LoadTable(fixture("ledger.csv"), 0)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}

	once := Normalize(table, CategoryLedger)
	twice := Normalize(once, CategoryLedger)

	for i := range once.Headers {
		if once.Headers[i] != twice.Headers[i] {
			t.Errorf("header %d changed on second normalization: %q != %q",
				i, once.Headers[i], twice.Headers[i])
		}
	}
}

func TestParseLedger(t *testing.T) {
	invoices, hasGatewayRef, err := LoadLedger(fixture("ledger.csv"), 0)
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if len(invoices) != 6 {
		t.Fatalf("expected 6 invoices, got %d", len(invoices))
	}
	if !hasGatewayRef {
		t.Error("ledger fixture carries a gateway reference column")
	}

	first := invoices[0]
	if first.LedgerID.String != "RCF-001" {
		t.Errorf("unexpected ledger ID %q", first.LedgerID.String)
	}
	if first.IsPaper {
		t.Error("RCF-001 has a gateway reference and must be electronic")
	}
	if first.Extra["observaciones_internas"] != "lote enero" {
		t.Errorf("passthrough cell lost: %v", first.Extra)
	}

	// Whitespace-only and textual-nan references classify as paper.
	if !invoices[1].IsPaper {
		t.Error("RCF-002 (blank reference) must be paper")
	}
	if !invoices[2].IsPaper {
		t.Error("RCF-003 (nan reference) must be paper")
	}

	// Continental amounts and float-serialized years coerce cleanly.
	fifth := invoices[4]
	if !fifth.TotalAmount.Valid || !fifth.TotalAmount.Decimal.Equal(decimal.NewFromInt(3025)) {
		t.Errorf("continental amount parsed as %+v", fifth.TotalAmount)
	}
	if !fifth.FiscalYear.Valid || fifth.FiscalYear.Int != 2025 {
		t.Errorf("fiscal year 2025.0 parsed as %+v", fifth.FiscalYear)
	}
	if !fifth.IsRejected() {
		t.Error("RCF-005 must be rejected")
	}

	if !invoices[5].IsDeleted() {
		t.Error("RCF-006 must carry the soft-delete state")
	}
}

func TestLoadLedgerWithoutGatewayRefColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	content := "id_fra_rcf,fecha_expedicion,estado\nRCF-001,15/01/2025,ANOTADA\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	invoices, hasGatewayRef, err := LoadLedger(path, 0)
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if hasGatewayRef {
		t.Error("source without a gateway reference column must be flagged")
	}
	if len(invoices) != 1 || !invoices[0].IsPaper {
		t.Errorf("rows without the column classify as paper, got %+v", invoices)
	}
}

func TestParseGateway(t *testing.T) {
	invoices, err := LoadGateway(fixture("gateway.csv"), 0)
	if err != nil {
		t.Fatalf("LoadGateway failed: %v", err)
	}
	if len(invoices) != 5 {
		t.Fatalf("expected 5 gateway invoices, got %d", len(invoices))
	}

	first := invoices[0]
	if first.RegistrationID.String != "FACE-2025-0001" {
		t.Errorf("unexpected registration ID %q", first.RegistrationID.String)
	}
	if !first.RegistrationDate.Valid {
		t.Error("registration date must parse")
	}
	if first.Currency.String != "EUR" {
		t.Errorf("unexpected currency %q", first.Currency.String)
	}
}

func TestParseCancellations(t *testing.T) {
	requests, err := LoadCancellations(fixture("cancellations.csv"), 0)
	if err != nil {
		t.Fatalf("LoadCancellations failed: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 cancellation requests, got %d", len(requests))
	}

	if !requests[0].Comment.Valid || requests[0].Comment.String != "factura duplicada" {
		t.Errorf("unexpected comment %+v", requests[0].Comment)
	}
	if requests[1].Comment.Valid {
		t.Error("empty comment cell must be absent, not empty string")
	}
}

func TestParseStateHistory(t *testing.T) {
	events, err := LoadStateHistory(fixture("states.csv"), 0)
	if err != nil {
		t.Fatalf("LoadStateHistory failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 state events, got %d", len(events))
	}

	if events[0].StateCode.String != "1300" {
		t.Errorf("unexpected state code %q", events[0].StateCode.String)
	}
	if !events[0].InsertedAt.Valid {
		t.Error("inserted timestamp must parse")
	}
}

func TestParseLedgerMissingColumns(t *testing.T) {
	table := &Table{
		Source:  "inline",
		Headers: []string{"id_fra_rcf", "estado"},
		Rows: [][]string{
			{"RCF-900", "REGISTRADA"},
		},
	}

	invoices := ParseLedger(Normalize(table, CategoryLedger))
	if len(invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(invoices))
	}

	inv := invoices[0]
	if inv.GatewayRef.Valid {
		t.Error("absent gateway_ref column must yield an invalid field")
	}
	if !inv.IsPaper {
		t.Error("invoice without gateway reference column must be paper")
	}
	if inv.TotalAmount.Valid || inv.FiscalYear.Valid {
		t.Error("absent numeric columns must yield invalid fields")
	}
	if inv.State.String != "REGISTRADA" {
		t.Errorf("unexpected state %q", inv.State.String)
	}
}

func TestCanonicalFieldsOrder(t *testing.T) {
	fields := CanonicalFields(CategoryLedger)
	if len(fields) != 18 {
		t.Errorf("expected 18 canonical ledger fields, got %d", len(fields))
	}
	if fields[0] != FieldLedgerID || fields[1] != FieldGatewayRef {
		t.Errorf("canonical field order changed: %v", fields[:2])
	}
}
