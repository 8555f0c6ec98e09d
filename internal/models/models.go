// Package models defines the canonical record types produced by source
// normalization: ledger invoices, gateway invoices, cancellation requests and
// state-change events.
//
// Source workbooks are inconsistent exports, so every canonical field is
// optional: a Null* value distinguishes "present" from "absent" explicitly
// instead of relying on zero values. Components state which optional fields
// they require; a missing field degrades the dependent computation, it never
// aborts the run.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NullString represents a string field that may be absent from the source.
type NullString struct {
	String string
	Valid  bool
}

// NullTime represents a timestamp field that may be absent or unparseable.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// NullDecimal represents an amount field that may be absent or unparseable.
type NullDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

// NullInt represents an integer field that may be absent or unparseable.
type NullInt struct {
	Int   int
	Valid bool
}

// String constructors keep call sites short in tests and parsers.

func NewString(s string) NullString            { return NullString{String: s, Valid: true} }
func NewTime(t time.Time) NullTime             { return NullTime{Time: t, Valid: true} }
func NewDecimal(d decimal.Decimal) NullDecimal { return NullDecimal{Decimal: d, Valid: true} }
func NewInt(i int) NullInt                     { return NullInt{Int: i, Valid: true} }

// InvoiceState values as they appear in ledger exports. Comparisons always go
// through LedgerInvoice.StateUpper so casing in the source does not matter.
const (
	StateDeleted  = "BORRADA"
	StateRejected = "RECHAZADA"
	StateCanceled = "ANULADA"
)

// LedgerInvoice is one row of the internal invoice ledger (RCF) after
// normalization. IsPaper is derived once at load time; see IsPaperRef.
type LedgerInvoice struct {
	LedgerID         NullString  `json:"ledger_id"`
	GatewayRef       NullString  `json:"gateway_ref"`
	IssueDate        NullTime    `json:"issue_date"`
	AnnotationDate   NullTime    `json:"annotation_date"`
	IssuerTaxID      NullString  `json:"issuer_tax_id"`
	IssuerName       NullString  `json:"issuer_name"`
	InvoiceNumber    NullString  `json:"invoice_number"`
	Series           NullString  `json:"series"`
	TotalAmount      NullDecimal `json:"total_amount"`
	Currency         NullString  `json:"currency"`
	TaxableBase      NullDecimal `json:"taxable_base"`
	FiscalYear       NullInt     `json:"fiscal_year"`
	PersonType       NullString  `json:"person_type"`
	State            NullString  `json:"state"`
	AccountingOffice NullString  `json:"accounting_office"`
	ManagingBody     NullString  `json:"managing_body"`
	ProcessingUnit   NullString  `json:"processing_unit"`
	RejectionMotive  NullString  `json:"rejection_motive"`

	// IsPaper is true when the invoice has no usable gateway reference.
	IsPaper bool `json:"is_paper"`

	// Extra preserves unmapped source columns under their original names.
	Extra map[string]string `json:"extra,omitempty"`
}

// GatewayInvoice is one row of the e-invoicing gateway registry after
// normalization.
type GatewayInvoice struct {
	RegistrationID   NullString  `json:"registration_id"`
	RegistrationDate NullTime    `json:"registration_date"`
	IssuerTaxID      NullString  `json:"issuer_tax_id"`
	PayeeName        NullString  `json:"payee_name"`
	InvoiceNumber    NullString  `json:"invoice_number"`
	Series           NullString  `json:"series"`
	Amount           NullDecimal `json:"amount"`
	Currency         NullString  `json:"currency"`
	AccountingOffice NullString  `json:"accounting_office"`
	ManagingBody     NullString  `json:"managing_body"`
	ProcessingUnit   NullString  `json:"processing_unit"`

	Extra map[string]string `json:"extra,omitempty"`
}

// CancellationRequest is one row of the gateway cancellation request export.
type CancellationRequest struct {
	RegistrationID NullString `json:"registration_id"`
	RequestDate    NullTime   `json:"request_date"`
	Comment        NullString `json:"comment"`

	Extra map[string]string `json:"extra,omitempty"`
}

// StateChangeEvent is one row of the gateway state-change history.
type StateChangeEvent struct {
	RegistrationID NullString `json:"registration_id"`
	StateCode      NullString `json:"state_code"`
	InsertedAt     NullTime   `json:"inserted_at"`

	Extra map[string]string `json:"extra,omitempty"`
}

// StateUpper returns the lifecycle state normalized to upper case, or the
// empty string when the field is absent.
func (li *LedgerInvoice) StateUpper() string {
	if !li.State.Valid {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(li.State.String))
}

// IsDeleted reports whether the invoice carries the soft-delete marker.
// Deleted invoices are excluded from aggregates by default but stay visible
// to the compliance rule engine.
func (li *LedgerInvoice) IsDeleted() bool {
	return li.StateUpper() == StateDeleted
}

// IsRejected reports whether the invoice was rejected.
func (li *LedgerInvoice) IsRejected() bool {
	return li.StateUpper() == StateRejected
}

// IsCanceled reports whether the invoice was canceled.
func (li *LedgerInvoice) IsCanceled() bool {
	return li.StateUpper() == StateCanceled
}

// String returns a compact representation used in logs.
func (li *LedgerInvoice) String() string {
	return fmt.Sprintf("LedgerInvoice{ID: %s, GatewayRef: %s, State: %s, Paper: %t}",
		li.LedgerID.String, li.GatewayRef.String, li.StateUpper(), li.IsPaper)
}

// IsNullMarker reports whether a raw cell value is one of the textual null
// placeholders spreadsheet tools produce when serializing a missing value.
func IsNullMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "none", "null":
		return true
	}
	return false
}

// IsPaperRef implements the paper/electronic classification rule: an invoice
// is paper iff its gateway reference is absent, empty after trimming, or a
// textual null marker. This is the single definition used everywhere.
func IsPaperRef(ref NullString) bool {
	if !ref.Valid {
		return true
	}
	trimmed := strings.TrimSpace(ref.String)
	if trimmed == "" {
		return true
	}
	return strings.ToLower(trimmed) == "nan"
}

// NormalizeID canonicalizes an identifier for index lookups: trimmed and
// upper-cased so the ledger's gateway references and the gateway registry's
// identifiers compare equal regardless of export casing.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// legalPersonExcluded are the leading letters of foreigner identification
// numbers, which denote natural persons.
var legalPersonExcluded = map[byte]bool{'X': true, 'Y': true, 'Z': true}

// IsLegalPersonTaxID reports whether a tax ID belongs to a legal person,
// judged by its leading letter. Used as a fallback when the ledger carries
// no person-type column.
func IsLegalPersonTaxID(taxID string) bool {
	s := strings.ToUpper(strings.TrimSpace(taxID))
	if s == "" || IsNullMarker(s) {
		return false
	}
	c := s[0]
	if c < 'A' || c > 'Z' {
		return false
	}
	return !legalPersonExcluded[c]
}

// ParseNullDecimal parses an amount cell into a NullDecimal, coercing
// malformed values to the invalid sentinel instead of failing. Currency
// symbols and grouping separators are stripped; both "1234.56" and the
// continental "1.234,56" form are accepted.
func ParseNullDecimal(s string) NullDecimal {
	s = strings.TrimSpace(s)
	if IsNullMarker(s) {
		return NullDecimal{}
	}

	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		// Continental notation: dot groups thousands, comma is the decimal mark
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return NullDecimal{}
	}
	return NullDecimal{Decimal: d, Valid: true}
}

// timeFormats are the timestamp layouts seen across ledger and gateway
// exports, day-first where ambiguous.
var timeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"2006/01/02",
}

// ParseNullTime parses a date or timestamp cell into a NullTime, coercing
// malformed values to the invalid sentinel instead of failing.
func ParseNullTime(s string) NullTime {
	s = strings.TrimSpace(s)
	if IsNullMarker(s) {
		return NullTime{}
	}

	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return NullTime{Time: t, Valid: true}
		}
	}

	return NullTime{}
}

// ParseNullYear parses a fiscal-year cell into a NullInt. Spreadsheet tools
// sometimes serialize the year as a float ("2025.0"), which is accepted.
func ParseNullYear(s string) NullInt {
	s = strings.TrimSpace(s)
	if IsNullMarker(s) {
		return NullInt{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return NullInt{}
	}
	if !d.IsInteger() {
		return NullInt{}
	}
	return NullInt{Int: int(d.IntPart()), Valid: true}
}

// ParseNullString wraps a raw cell into a NullString, mapping textual null
// markers to the invalid sentinel.
func ParseNullString(s string) NullString {
	if IsNullMarker(s) {
		return NullString{}
	}
	return NullString{String: strings.TrimSpace(s), Valid: true}
}
