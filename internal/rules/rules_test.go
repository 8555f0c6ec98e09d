package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/errors"

	"github.com/shopspring/decimal"
)

func loadMapping(t *testing.T) *ClauseMapping {
	t.Helper()
	mapping, err := LoadClauseMapping(filepath.Join("..", "..", "testdata", "clauses.csv"))
	if err != nil {
		t.Fatalf("LoadClauseMapping failed: %v", err)
	}
	return mapping
}

func newEngine(t *testing.T, mapping *ClauseMapping) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig(), mapping)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func electronic(motive string, issued time.Time) *models.LedgerInvoice {
	inv := &models.LedgerInvoice{
		GatewayRef: models.NewString("FACE-X"),
		IssueDate:  models.NewTime(issued),
	}
	if motive != "" {
		inv.RejectionMotive = models.NewString(motive)
		inv.State = models.NewString(models.StateRejected)
	}
	return inv
}

func TestLoadClauseMapping(t *testing.T) {
	mapping := loadMapping(t)
	if mapping.Size() != 9 {
		t.Errorf("expected 9 prefixes, got %d", mapping.Size())
	}

	clause, ok := mapping.Lookup("VAL00015 datos fiscales no coinciden")
	if !ok || clause != Clause6a {
		t.Errorf("Lookup = (%q, %v), want (6a, true)", clause, ok)
	}
	if _, ok := mapping.Lookup("UNKNOWN1 something"); ok {
		t.Error("unmapped prefix must not match")
	}
}

func TestLookupSlicesRawMotive(t *testing.T) {
	mapping := loadMapping(t)

	// The prefix is the first 8 characters as given; a padded motive
	// carries a different prefix and must not match.
	if _, ok := mapping.Lookup("  VAL00015 datos fiscales"); ok {
		t.Error("padded motive must not match a mapped prefix")
	}
	if clause, ok := mapping.Lookup("VAL00015"); !ok || clause != Clause6a {
		t.Errorf("exact-length motive: got (%q, %v), want (6a, true)", clause, ok)
	}
}

func TestClauseNames(t *testing.T) {
	tests := []struct {
		clause string
		want   string
	}{
		{Clause4c, "No duplicate invoices"},
		{Clause5f, "Issuer NIF differs from assignee NIF"},
		{Clause6c, "Valid currency code (ISO 4217)"},
		{Clause6f, "Invoice total = gross + charged - withheld"},
	}
	for _, tt := range tests {
		if got := ClauseName(tt.clause); got != tt.want {
			t.Errorf("ClauseName(%s) = %q, want %q", tt.clause, got, tt.want)
		}
	}
}

func TestLoadClauseMappingRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.csv")
	content := "VAL00001,4c\nVAL00001,6a\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadClauseMapping(path)
	if err == nil {
		t.Fatal("duplicate prefix must be rejected")
	}
	auditErr, ok := errors.AsAuditError(err)
	if !ok {
		t.Fatalf("expected AuditError, got %T", err)
	}
	if auditErr.Code != errors.CodeAmbiguousMapping {
		t.Errorf("expected %s, got %s", errors.CodeAmbiguousMapping, auditErr.Code)
	}
}

func TestLoadClauseMappingRejectsUnknownClause(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("VAL00001,9z\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClauseMapping(path); err == nil {
		t.Error("unknown clause identifier must be rejected")
	}
}

func TestEvaluate(t *testing.T) {
	engine := newEngine(t, loadMapping(t))
	issued := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	deleted := electronic("VAL00015 datos fiscales", issued)
	deleted.State = models.NewString(models.StateDeleted)

	ledger := []*models.LedgerInvoice{
		electronic("", issued),
		electronic("", issued),
		electronic("VAL00001 contenido obligatorio", issued),
		// Soft-deleted incumbents still count.
		deleted,
		// Motive with no mapped prefix: not an incumbent.
		electronic("OTR00099 motivo libre", issued),
		// Issued before the validations took effect: out of population.
		electronic("VAL00001 antiguo", time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)),
		// Paper: out of population.
		{IsPaper: true, IssueDate: models.NewTime(issued)},
	}

	result := engine.Evaluate(ledger)
	if !result.Available {
		t.Fatal("evaluation must be available")
	}
	if result.PopulationSize != 5 {
		t.Fatalf("expected population of 5, got %d", result.PopulationSize)
	}
	if result.TotalIncumbents != 2 {
		t.Fatalf("expected 2 incumbents, got %d", result.TotalIncumbents)
	}

	byClause := make(map[string]ClauseStat)
	for _, stat := range result.Clauses {
		byClause[stat.Clause] = stat
	}
	if byClause[Clause4c].Count != 1 || byClause[Clause6a].Count != 1 {
		t.Errorf("unexpected attribution: 4c=%d 6a=%d", byClause[Clause4c].Count, byClause[Clause6a].Count)
	}
	if len(byClause[Clause6a].Incumbents) != 1 || !byClause[Clause6a].Incumbents[0].IsDeleted() {
		t.Error("deleted incumbent snapshot missing from clause 6a")
	}

	// 2 incumbents over 5: compliance 60%.
	if result.CompliancePct != 60 {
		t.Errorf("compliance = %v, want 60", result.CompliancePct)
	}
	if len(result.Clauses) != len(ClauseOrder) {
		t.Errorf("every clause must be reported, got %d", len(result.Clauses))
	}
}

func TestEvaluateEmptyPopulation(t *testing.T) {
	engine := newEngine(t, loadMapping(t))

	result := engine.Evaluate(nil)
	if !result.Available {
		t.Fatal("evaluation must be available")
	}
	if result.PopulationSize != 0 {
		t.Fatalf("expected empty population, got %d", result.PopulationSize)
	}
	if result.CompliancePct != 100 {
		t.Errorf("empty population must report 100%% compliance, got %v", result.CompliancePct)
	}
}

func TestEvaluateWithoutMapping(t *testing.T) {
	engine := newEngine(t, nil)

	result := engine.Evaluate([]*models.LedgerInvoice{
		electronic("VAL00001 x", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if result.Available {
		t.Error("evaluation without a mapping must be unavailable, not zero")
	}
}

func TestAnalyzeRejections(t *testing.T) {
	issued := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	noMotive := electronic("", issued)
	noMotive.State = models.NewString(models.StateRejected)

	ledger := []*models.LedgerInvoice{
		electronic("VAL00001 contenido", issued),
		electronic("VAL00001 contenido", issued),
		electronic("OTR00099 motivo libre", issued),
		noMotive,
		electronic("", issued), // no state: not counted
	}

	analysis := AnalyzeRejections(ledger)
	if analysis.Total != 4 {
		t.Fatalf("expected 4 rejected/deleted invoices, got %d", analysis.Total)
	}
	if analysis.WithoutMotive != 1 {
		t.Errorf("expected 1 motiveless rejection, got %d", analysis.WithoutMotive)
	}
	if len(analysis.Motives) != 2 {
		t.Fatalf("expected 2 distinct motives, got %d", len(analysis.Motives))
	}
	if analysis.Motives[0].Motive != "VAL00001 contenido" || analysis.Motives[0].Count != 2 {
		t.Errorf("unexpected top motive: %+v", analysis.Motives[0])
	}
}

func TestSuspectPaperInvoices(t *testing.T) {
	engine := newEngine(t, nil)

	issued := models.NewTime(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	base := func(v int64) models.NullDecimal {
		return models.NewDecimal(decimal.NewFromInt(v))
	}

	suspect := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   issued,
		TaxableBase: base(4000),
		PersonType:  models.NewString("J"),
	}
	belowThreshold := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   issued,
		TaxableBase: base(3000), // not strictly above
		PersonType:  models.NewString("J"),
	}
	naturalPerson := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   issued,
		TaxableBase: base(9000),
		PersonType:  models.NewString("F"),
	}
	heuristicLegal := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   issued,
		TaxableBase: base(5000),
		IssuerTaxID: models.NewString("B12345678"),
	}
	foreignNatural := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   issued,
		TaxableBase: base(5000),
		IssuerTaxID: models.NewString("X1234567L"),
	}
	preObligation := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   models.NewTime(time.Date(2014, 6, 1, 0, 0, 0, 0, time.UTC)),
		TaxableBase: base(9000),
		PersonType:  models.NewString("J"),
	}
	rejected := &models.LedgerInvoice{
		IsPaper:     true,
		IssueDate:   issued,
		TaxableBase: base(9000),
		PersonType:  models.NewString("J"),
		State:       models.NewString(models.StateRejected),
	}
	noBase := &models.LedgerInvoice{
		IsPaper:    true,
		IssueDate:  issued,
		PersonType: models.NewString("J"),
	}
	electronicInv := &models.LedgerInvoice{
		IssueDate:   issued,
		TaxableBase: base(9000),
		PersonType:  models.NewString("J"),
	}

	result := engine.SuspectPaperInvoices([]*models.LedgerInvoice{
		suspect, belowThreshold, naturalPerson, heuristicLegal,
		foreignNatural, preObligation, rejected, noBase, electronicInv,
	})

	if result.Total != 2 {
		t.Fatalf("expected 2 suspects, got %d", result.Total)
	}
	if result.Suspects[0] != suspect || result.Suspects[1] != heuristicLegal {
		t.Errorf("unexpected suspects: %+v", result.Suspects)
	}
	if result.Assessed != 6 {
		t.Errorf("expected 6 assessable paper invoices, got %d", result.Assessed)
	}
}
