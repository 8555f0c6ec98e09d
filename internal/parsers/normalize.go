package parsers

import (
	"strings"

	"rcf-audit-service/pkg/logger"
)

// Category identifies which of the four audit sources a table belongs to.
// Each category has its own canonical schema and alias table.
type Category string

const (
	CategoryLedger        Category = "ledger"
	CategoryGateway       Category = "gateway"
	CategoryCancellations Category = "cancellations"
	CategoryStateHistory  Category = "state_history"
)

// Canonical field names for the ledger source.
const (
	FieldLedgerID         = "ledger_id"
	FieldGatewayRef       = "gateway_ref"
	FieldIssueDate        = "issue_date"
	FieldAnnotationDate   = "annotation_date"
	FieldIssuerTaxID      = "issuer_tax_id"
	FieldIssuerName       = "issuer_name"
	FieldInvoiceNumber    = "invoice_number"
	FieldSeries           = "series"
	FieldTotalAmount      = "total_amount"
	FieldCurrency         = "currency"
	FieldTaxableBase      = "taxable_base"
	FieldFiscalYear       = "fiscal_year"
	FieldPersonType       = "person_type"
	FieldState            = "state"
	FieldAccountingOffice = "accounting_office"
	FieldManagingBody     = "managing_body"
	FieldProcessingUnit   = "processing_unit"
	FieldRejectionMotive  = "rejection_motive"
)

// Canonical field names for the gateway registry, cancellation requests and
// state-change history. Shared identifiers reuse the same name across
// categories.
const (
	FieldRegistrationID   = "registration_id"
	FieldRegistrationDate = "registration_date"
	FieldPayeeName        = "payee_name"
	FieldAmount           = "amount"
	FieldRequestDate      = "request_date"
	FieldComment          = "comment"
	FieldStateCode        = "state_code"
	FieldInsertedAt       = "inserted_at"
)

// fieldAliases binds one canonical field to its source header variants in
// priority order. The first variant present in the table wins; the canonical
// name itself always matches first so already-normalized tables pass through
// unchanged.
type fieldAliases struct {
	canonical string
	aliases   []string
}

// ledgerAliases covers the header variants seen across ledger exports from
// different accounting systems.
var ledgerAliases = []fieldAliases{
	{FieldLedgerID, []string{"id_fra_rcf", "ID_FRA_RCF", "id_rcf", "ID RCF", "Id", "ID"}},
	{FieldGatewayRef, []string{"id_face", "ID_FACE", "ID FACe", "Nº Registro FACe", "registro_face", "Registro FACe"}},
	{FieldIssueDate, []string{"fecha_expedicion", "Fecha Expedición", "fecha_emision", "Fecha Emisión", "FECHA EXP. FRA."}},
	{FieldAnnotationDate, []string{"fecha_anotacion_rcf", "fecha_anotacion", "Fecha Anotación", "Fecha registro", "fecha_registro_rcf", "F. DE GRABACIÓN DE LA OPER."}},
	{FieldIssuerTaxID, []string{"nif_emisor", "NIF Emisor", "NIF/CIF", "NIF", "nif", "CIF", "cif"}},
	{FieldIssuerName, []string{"razon_social", "Razón Social", "nombre_emisor", "proveedor", "Proveedor", "Nombre", "NOMBRE/RAZÓN SOCIAL"}},
	{FieldInvoiceNumber, []string{"numero_factura", "Nº Factura", "num_factura", "Número", "numero", "N_FRA"}},
	{FieldSeries, []string{"serie", "Serie", "SERIE", "Serie Factura"}},
	{FieldTotalAmount, []string{"importe_total", "Importe Total", "importe", "Importe", "I. TOTAL FACTURA", "Total"}},
	{FieldCurrency, []string{"moneda", "Moneda", "divisa", "Divisa", "UNIDAD MONETARIA"}},
	{FieldTaxableBase, []string{"base_imponible", "Base Imponible", "BASE IMPONIBLE", "IMP. BASE IMPONIBLE", "bi", "BI"}},
	{FieldFiscalYear, []string{"ejercicio", "Ejercicio", "EJERCICIO", "Año", "anio"}},
	{FieldPersonType, []string{"tipo_persona", "Tipo Persona", "tipo", "Tipo"}},
	{FieldState, []string{"estado", "Estado", "ESTADO", "ESTADO FACTURA", "estado_factura"}},
	{FieldAccountingOffice, []string{"codigo_oc", "Oficina Contable", "oficina_contable", "OC", "CODIGO DIR3 OFICINA CONTABLE"}},
	{FieldManagingBody, []string{"codigo_og", "Órgano Gestor", "organo_gestor", "OG", "CODIGO DIR3 ÓRGANO GESTOR"}},
	{FieldProcessingUnit, []string{"codigo_ut", "Unidad Tramitadora", "unidad_tramitadora", "UT", "CODIGO DIR3 UNIDAD TRAMITADORA"}},
	{FieldRejectionMotive, []string{"motivo_rechazo", "Motivo Rechazo", "MOTIVO RECHAZO", "motivo", "Motivo"}},
}

// gatewayAliases covers the gateway registry export headers.
var gatewayAliases = []fieldAliases{
	{FieldRegistrationID, []string{"registro", "Registro", "Nº Registro", "numero_registro", "id_face", "ID_FACE"}},
	{FieldRegistrationDate, []string{"fecha_registro", "Fecha Registro", "fecha", "Fecha", "Fecha de Registro"}},
	{FieldIssuerTaxID, []string{"nif_emisor", "NIF Emisor", "NIF", "nif", "CIF", "cif"}},
	{FieldPayeeName, []string{"nombre", "Nombre", "razon_social", "Razón Social", "destinatario"}},
	{FieldInvoiceNumber, []string{"numero", "Número", "numero_factura", "Nº Factura"}},
	{FieldSeries, []string{"serie", "Serie"}},
	{FieldAmount, []string{"importe", "Importe", "importe_total", "Importe Total", "Total"}},
	{FieldCurrency, []string{"moneda_original", "Moneda Original", "moneda", "Moneda", "divisa"}},
	{FieldAccountingOffice, []string{"oc", "OC", "Oficina Contable", "codigo_oc"}},
	{FieldManagingBody, []string{"og", "OG", "Órgano Gestor", "codigo_og"}},
	{FieldProcessingUnit, []string{"ut", "UT", "Unidad Tramitadora", "codigo_ut"}},
}

// cancellationAliases covers the cancellation request export headers.
var cancellationAliases = []fieldAliases{
	{FieldRegistrationID, []string{"registro", "Registro", "Nº Registro", "numero_registro", "id_face"}},
	{FieldRequestDate, []string{"fecha_solicitud_anulacion", "Fecha Solicitud Anulación", "fecha_solicitud", "Fecha Solicitud", "fecha", "Fecha"}},
	{FieldComment, []string{"comentario", "Comentario", "observaciones", "Observaciones", "motivo", "Motivo"}},
}

// stateHistoryAliases covers the state-change history export headers.
var stateHistoryAliases = []fieldAliases{
	{FieldRegistrationID, []string{"registro", "Registro", "Nº Registro", "numero_registro", "id_face"}},
	{FieldStateCode, []string{"codigo", "Código", "codigo_estado", "Código Estado", "estado", "Estado"}},
	{FieldInsertedAt, []string{"insertado", "Insertado", "fecha_insercion", "Fecha Inserción", "fecha_cambio", "fecha", "Fecha"}},
}

var aliasTables = map[Category][]fieldAliases{
	CategoryLedger:        ledgerAliases,
	CategoryGateway:       gatewayAliases,
	CategoryCancellations: cancellationAliases,
	CategoryStateHistory:  stateHistoryAliases,
}

// CanonicalFields returns the canonical schema of a category, in declaration
// order.
func CanonicalFields(category Category) []string {
	table := aliasTables[category]
	fields := make([]string, len(table))
	for i, fa := range table {
		fields[i] = fa.canonical
	}
	return fields
}

// Normalize renames the columns of a raw table onto the canonical schema of
// the given category. For each canonical field, alias variants are tried in
// priority order and the first present column is renamed; the canonical name
// itself always wins over later aliases. Columns matching no alias keep their
// original names, row order is untouched, and a canonical field with no
// source column is simply absent from the result.
func Normalize(t *Table, category Category) *Table {
	log := logger.GetGlobalLogger().WithComponent("parsers")

	headers := make([]string, len(t.Headers))
	copy(headers, t.Headers)

	index := t.HeaderIndex()
	claimed := make(map[int]bool)

	var mapped, missing []string
	for _, fa := range aliasTables[category] {
		col, found := findAlias(index, claimed, fa)
		if !found {
			missing = append(missing, fa.canonical)
			continue
		}
		headers[col] = fa.canonical
		claimed[col] = true
		mapped = append(mapped, fa.canonical)
	}

	log.WithFields(logger.Fields{
		"source":   t.Source,
		"category": string(category),
		"mapped":   len(mapped),
		"missing":  strings.Join(missing, ","),
	}).Debug("Normalized table schema")

	return &Table{
		Source:  t.Source,
		Headers: headers,
		Rows:    t.Rows,
	}
}

func findAlias(index map[string]int, claimed map[int]bool, fa fieldAliases) (int, bool) {
	if col, ok := index[fa.canonical]; ok && !claimed[col] {
		return col, true
	}
	for _, alias := range fa.aliases {
		if col, ok := index[alias]; ok && !claimed[col] {
			return col, true
		}
	}
	return 0, false
}
